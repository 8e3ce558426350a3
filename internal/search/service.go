package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(p ProjectRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProject(p); err != nil {
			log.Printf("search: index project %s: %v", p.ID, err)
		}
	}()
}

// IndexFile indexes a file (fire-and-forget to Meilisearch).
func (s *Service) IndexFile(f FileRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexFile(f); err != nil {
			log.Printf("search: index file %s: %v", f.ID, err)
		}
	}()
}

// IndexComment indexes a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(c CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			log.Printf("search: index comment %s: %v", c.ID, err)
		}
	}()
}

// DeleteProject removes a project from the search index (fire-and-forget).
func (s *Service) DeleteProject(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProject(id); err != nil {
			log.Printf("search: delete project %s: %v", id, err)
		}
	}()
}

// DeleteFile removes a file from the search index (fire-and-forget).
func (s *Service) DeleteFile(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteFile(id); err != nil {
			log.Printf("search: delete file %s: %v", id, err)
		}
	}()
}

// DeleteComment removes a comment from the search index (fire-and-forget).
func (s *Service) DeleteComment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(id); err != nil {
			log.Printf("search: delete comment %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	projects, files, commentRecords, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}

	if err := s.meili.IndexProjects(projects); err != nil {
		log.Printf("search: reindex projects: %v", err)
	}
	if err := s.meili.IndexFiles(files); err != nil {
		log.Printf("search: reindex files: %v", err)
	}
	if err := s.meili.IndexComments(commentRecords); err != nil {
		log.Printf("search: reindex comments: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
