// Package api exposes the HTTP interface for the crawl service: seed
// submission and read access to stored pages.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hfujino/webharvest/internal/metrics"
	"github.com/hfujino/webharvest/internal/pipeline"
)

// Seeder accepts URLs into the crawl frontier. The pipeline is the production
// implementation.
type Seeder interface {
	Enqueue(url string) error
	GetStats() pipeline.Stats
}

// Server wires HTTP handlers to the pipeline and the page store
type Server struct {
	router  chi.Router
	seeder  Seeder
	storage pipeline.Storage
}

// NewServer constructs a Server with middleware and routes
func NewServer(seeder Seeder, storage pipeline.Storage) *Server {
	s := &Server{
		seeder:  seeder,
		storage: storage,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/seed", s.submitSeeds)
		r.Get("/pages", s.listPages)
		r.Get("/page", s.getPage)
		r.Get("/stats", s.getStats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.storage.QueueCounts(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type seedRequest struct {
	URL  string   `json:"url"`
	URLs []string `json:"urls"`
}

func (s *Server) submitSeeds(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	urls := req.URLs
	if req.URL != "" {
		urls = append(urls, req.URL)
	}
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}

	accepted := 0
	var rejected []string
	for _, u := range urls {
		if err := s.seeder.Enqueue(u); err != nil {
			rejected = append(rejected, u)
			continue
		}
		accepted++
	}

	if accepted == 0 {
		writeError(w, http.StatusBadRequest, "no valid URLs")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": accepted,
		"rejected": rejected,
	})
}

// pageResponse is the wire form of a stored page
type pageResponse struct {
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	Title       string     `json:"title,omitempty"`
	Text        string     `json:"text,omitempty"`
	Links       []string   `json:"links"`
	ContentHash string     `json:"content_hash,omitempty"`
	DuplicateOf string     `json:"duplicate_of,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
}

func toPageResponse(record *pipeline.PageRecord) pageResponse {
	resp := pageResponse{
		URL:         record.URL,
		Status:      string(record.Status),
		Title:       record.Title,
		Text:        record.Text,
		Links:       record.Links,
		ContentHash: record.ContentHash,
		DuplicateOf: record.DuplicateOf,
	}
	if resp.Links == nil {
		resp.Links = []string{}
	}
	if !record.FetchedAt.IsZero() {
		t := record.FetchedAt
		resp.FetchedAt = &t
	}
	return resp
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}

	canonical, err := pipeline.Canonicalize(rawURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url parameter")
		return
	}

	record, err := s.storage.GetPage(canonical)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			writeError(w, http.StatusNotFound, "page not found")
			return
		}
		slog.Error("Failed to load page", "url", canonical, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load page")
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(record))
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePageFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.storage.ListPages(filter)
	if err != nil {
		slog.Error("Failed to list pages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}

	pages := make([]pageResponse, 0, len(records))
	for _, record := range records {
		pages = append(pages, toPageResponse(record))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pages": pages,
		"count": len(pages),
	})
}

func parsePageFilter(r *http.Request) (pipeline.PageFilter, error) {
	var filter pipeline.PageFilter

	if status := r.URL.Query().Get("status"); status != "" {
		switch pipeline.Status(status) {
		case pipeline.StatusPending, pipeline.StatusFetching, pipeline.StatusFetched, pipeline.StatusFailed:
			filter.Status = pipeline.Status(status)
		default:
			return filter, errors.New("invalid status filter")
		}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, errors.New("invalid limit parameter")
		}
		filter.Limit = limit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errors.New("invalid offset parameter")
		}
		filter.Offset = offset
	}

	return filter, nil
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	counts, err := s.storage.QueueCounts()
	if err != nil {
		slog.Error("Failed to get frontier counts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	stats := s.seeder.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"pages_fetched": stats.PagesFetched,
		"duplicates":    stats.Duplicates,
		"errors":        stats.ErrorCount,
		"duration_ms":   stats.Duration.Milliseconds(),
		"frontier": map[string]int{
			"pending":  counts.Pending,
			"fetching": counts.Fetching,
			"fetched":  counts.Fetched,
			"failed":   counts.Failed,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
