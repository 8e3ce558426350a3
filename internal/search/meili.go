package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxProjects = "markroom_projects"
	idxFiles    = "markroom_files"
	idxComments = "markroom_comments"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The client
// keeps polling health in the background so a late-starting Meilisearch is
// picked up without a restart.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxProjects,
			primaryKey: "id",
			filterable: nil,
			searchable: []string{"title"},
		},
		{
			uid:        idxFiles,
			primaryKey: "id",
			filterable: []string{"projectId", "mimeType"},
			searchable: []string{"name", "originalName"},
		},
		{
			uid:        idxComments,
			primaryKey: "id",
			filterable: []string{"projectId", "fileId", "tag"},
			searchable: []string{"content", "authorName"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		if len(idx.filterable) > 0 {
			filterableInterface := make([]interface{}, len(idx.filterable))
			for i, v := range idx.filterable {
				filterableInterface[i] = v
			}
			if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
				log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
			}
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxProjects, ResultProject},
		{idxFiles, ResultFile},
		{idxComments, ResultComment},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		if q.FilterProjectID != "" && ti.rtyp != ResultProject {
			sr.Filter = []string{fmt.Sprintf("projectId = %q", q.FilterProjectID)}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxProjects:
		return ResultProject
	case idxFiles:
		return ResultFile
	case idxComments:
		return ResultComment
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.ProjectID = decodeString(hit, "projectId")
	r.FileID = decodeString(hit, "fileId")
	r.Tag = decodeString(hit, "tag")

	switch rtyp {
	case ResultProject:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.ProjectID = r.ID // project's own ID
	case ResultFile:
		r.Title = firstNonBlank(decodeFormattedString(hit, "originalName"), decodeString(hit, "originalName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
	case ResultComment:
		r.Title = firstNonBlank(decodeFormattedString(hit, "authorName"), decodeString(hit, "authorName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexProject adds or updates a project in the search index.
func (m *Meili) IndexProject(p ProjectRecord) error {
	_, err := m.client.Index(idxProjects).AddDocuments([]ProjectRecord{p}, nil)
	return err
}

// IndexFile adds or updates a file in the search index.
func (m *Meili) IndexFile(f FileRecord) error {
	_, err := m.client.Index(idxFiles).AddDocuments([]FileRecord{f}, nil)
	return err
}

// IndexComment adds or updates a comment in the search index.
func (m *Meili) IndexComment(c CommentRecord) error {
	_, err := m.client.Index(idxComments).AddDocuments([]CommentRecord{c}, nil)
	return err
}

// DeleteProject removes a project from the search index.
func (m *Meili) DeleteProject(id string) error {
	_, err := m.client.Index(idxProjects).DeleteDocument(id, nil)
	return err
}

// DeleteFile removes a file from the search index.
func (m *Meili) DeleteFile(id string) error {
	_, err := m.client.Index(idxFiles).DeleteDocument(id, nil)
	return err
}

// DeleteComment removes a comment from the search index.
func (m *Meili) DeleteComment(id string) error {
	_, err := m.client.Index(idxComments).DeleteDocument(id, nil)
	return err
}

// IndexProjects bulk-indexes projects.
func (m *Meili) IndexProjects(projects []ProjectRecord) error {
	if len(projects) == 0 {
		return nil
	}
	_, err := m.client.Index(idxProjects).AddDocuments(projects, nil)
	return err
}

// IndexFiles bulk-indexes files.
func (m *Meili) IndexFiles(files []FileRecord) error {
	if len(files) == 0 {
		return nil
	}
	_, err := m.client.Index(idxFiles).AddDocuments(files, nil)
	return err
}

// IndexComments bulk-indexes comments.
func (m *Meili) IndexComments(commentRecords []CommentRecord) error {
	if len(commentRecords) == 0 {
		return nil
	}
	_, err := m.client.Index(idxComments).AddDocuments(commentRecords, nil)
	return err
}
