// Package testutil provides testing utilities for the sync pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

var genrePool = []string{"Action", "Comedy", "Drama", "Fantasy", "Romance"}

// MockCatalog is a configurable fake of the upstream catalog API. It serves
// deterministic JSON:API pages for one season and can inject failure statuses
// per page before eventually answering 200.
type MockCatalog struct {
	server *httptest.Server

	mu           sync.Mutex
	totalPages   int
	pageSize     int
	requestCount int
	pageRequests map[int]int
	failures     map[int][]int
}

// NewMockCatalog creates a mock catalog serving totalPages pages of pageSize
// records each.
func NewMockCatalog(totalPages, pageSize int) *MockCatalog {
	m := &MockCatalog{
		totalPages:   totalPages,
		pageSize:     pageSize,
		pageRequests: make(map[int]int),
		failures:     make(map[int][]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server base URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// FailPage queues failure statuses for a page. Each request to that page
// consumes one status until the queue is empty, after which it serves 200.
func (m *MockCatalog) FailPage(page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[page] = append(m.failures[page], statuses...)
}

// RequestCount returns the total number of requests served.
func (m *MockCatalog) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PageRequests returns how often a given page was requested.
func (m *MockCatalog) PageRequests(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageRequests[page]
}

func (m *MockCatalog) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageSize := m.pageSize
	if v := q.Get("page[limit]"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}

	offset := 0
	if v := q.Get("page[offset]"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	page := offset/pageSize + 1

	m.mu.Lock()
	m.requestCount++
	m.pageRequests[page]++

	if queued := m.failures[page]; len(queued) > 0 {
		status := queued[0]
		m.failures[page] = queued[1:]
		m.mu.Unlock()
		http.Error(w, http.StatusText(status), status)
		return
	}
	m.mu.Unlock()

	if page > m.totalPages {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		fmt.Fprint(w, `{"data":[],"links":{}}`)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(m.buildPage(page, pageSize)); err != nil {
		panic(err)
	}
}

// buildPage generates a deterministic JSON:API page document.
func (m *MockCatalog) buildPage(page, pageSize int) map[string]any {
	data := make([]map[string]any, 0, pageSize)
	included := make([]map[string]any, 0)
	seenGenres := make(map[string]bool)

	for i := 0; i < pageSize; i++ {
		n := (page-1)*pageSize + i + 1
		genreID := strconv.Itoa(n%len(genrePool) + 1)
		genreName := genrePool[n%len(genrePool)]

		data = append(data, map[string]any{
			"id": strconv.Itoa(n),
			"attributes": map[string]any{
				"titles": map[string]any{
					"en":    fmt.Sprintf("Test Anime %d", n),
					"en_jp": fmt.Sprintf("Tesuto Anime %d", n),
				},
				"synopsis":      fmt.Sprintf("Synopsis for anime %d.", n),
				"startDate":     "2026-01-05",
				"episodeCount":  12,
				"subtype":       "TV",
				"averageRating": "78.5",
				"posterImage":   map[string]any{"medium": fmt.Sprintf("https://example.test/posters/%d.jpg", n)},
			},
			"relationships": map[string]any{
				"genres": map[string]any{
					"data": []map[string]any{{"type": "genres", "id": genreID}},
				},
			},
		})

		if !seenGenres[genreID] {
			seenGenres[genreID] = true
			included = append(included, map[string]any{
				"type":       "genres",
				"id":         genreID,
				"attributes": map[string]any{"name": genreName},
			})
		}
	}

	links := map[string]any{}
	if page < m.totalPages {
		links["next"] = fmt.Sprintf("%s/anime?page[offset]=%d", m.server.URL, page*pageSize)
	}

	return map[string]any{
		"data":     data,
		"included": included,
		"links":    links,
	}
}
