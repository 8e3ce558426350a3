package store

import "time"

type Project struct {
	ID        string
	PublicID  string
	Title     string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type File struct {
	ID           string
	ProjectID    string
	Name         string
	OriginalName string
	MimeType     string
	Size         int64
	ObjectPath   string
	PublicID     *string
	UploadedAt   time.Time
}

// Comment is the flat relational shape. The anchor columns are all nullable;
// which family is meaningful is decided by the owning file's MIME type.
// positionX/positionY store percentage-of-dimension multiplied by 100.
type Comment struct {
	ID        string
	FileID    string
	ParentID  *string
	Name      string
	Email     *string
	Content   string
	Tag       string
	PositionX *int
	PositionY *int
	Timestamp *int
	Page      *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectView records when a user last opened a project. At most one row
// exists per (user, project) pair.
type ProjectView struct {
	UserID       string
	ProjectID    string
	LastViewedAt time.Time
}
