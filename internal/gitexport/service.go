package gitexport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"markroom/api/internal/comments"
	"markroom/api/internal/store"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Snapshot is the JSON document committed into a project's export repo.
type Snapshot struct {
	Project    store.Project  `json:"project"`
	Files      []FileSnapshot `json:"files"`
	ExportedAt time.Time      `json:"exportedAt"`
}

// FileSnapshot carries one file with its fully threaded comments.
type FileSnapshot struct {
	File     store.File      `json:"file"`
	Comments []comments.Node `json:"comments"`
}

// CommitInfo summarizes one export commit.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service manages one git repository per project under baseDir.
// All operations on the same project serialize on a per-project lock.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitSnapshot writes snapshot.json into the project's repo and commits it
// on main, initializing the repo on first use.
func (s *Service) CommitSnapshot(projectID string, snap Snapshot, author, message string) (CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(projectID)
	if err != nil {
		return CommitInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "snapshot.json"), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write snapshot.json: %w", err)
	}
	if _, err := worktree.Add("snapshot.json"); err != nil {
		return CommitInfo{}, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.markroom.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History returns the most recent export commits on main, newest first.
func (s *Service) History(projectID string, limit int) ([]CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []CommitInfo{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Push pushes the project's repo to a remote. The remote is added or updated
// under the name "export" so repeated pushes with a new URL keep working.
func (s *Service) Push(projectID, remoteURL, token string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}

	if err := repo.DeleteRemote("export"); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("reset remote: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "export", URLs: []string{remoteURL}}); err != nil {
		return fmt.Errorf("create remote: %w", err)
	}

	opts := &git.PushOptions{RemoteName: "export"}
	if token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	if err := repo.Push(opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func (s *Service) ensureRepo(projectID string) (*git.Repository, error) {
	path := s.repoPath(projectID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
