package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultFile    ResultType = "file"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
	FileID    string     `json:"fileId,omitempty"`
	Tag       string     `json:"tag,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexProject(p ProjectRecord) error
	IndexFile(f FileRecord) error
	IndexComment(c CommentRecord) error
	DeleteProject(id string) error
	DeleteFile(id string) error
	DeleteComment(id string) error
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// FileRecord is the data we index for a file.
type FileRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	ProjectID    string `json:"projectId"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	AuthorName string `json:"authorName"`
	Tag        string `json:"tag"`
	FileID     string `json:"fileId"`
	ProjectID  string `json:"projectId"`
}
