package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/chatstash/chatstash/internal/fetchpool"
	"github.com/chatstash/chatstash/internal/pages"
)

// tenantID resolves the conversation id for a request. The header wins over
// the query parameter; a missing id falls back to the shared default store.
func tenantID(r *http.Request, bodyTenant string) string {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("tenant"); id != "" {
		return id
	}
	return bodyTenant
}

// repoFor opens the tenant store named by the request and wraps it in a repo.
func (s *Server) repoFor(r *http.Request, bodyTenant string) (*pages.Repo, error) {
	store, err := s.stores.Open(tenantID(r, bodyTenant))
	if err != nil {
		return nil, err
	}
	return pages.NewRepo(store, s.hasher, s.clock), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeBatchError maps batch validation failures to 400 and everything else
// to 500.
func writeBatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, fetchpool.ErrEmptyBatch) || errors.Is(err, fetchpool.ErrTooManyURLs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

type crawlRequest struct {
	Tenant string   `json:"tenant"`
	URLs   []string `json:"urls"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !decodeBody(w, r, &req) {
		return
	}

	repo, err := s.repoFor(r, req.Tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	outcomes, err := s.pool.Crawl(r.Context(), req.URLs, repo)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": outcomes})
}

type previewRequest struct {
	URLs  []string `json:"urls"`
	Query string   `json:"query"`
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items, err := s.pool.Preview(r.Context(), req.URLs, req.Query)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) searchPages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	repo, err := s.repoFor(r, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items, err := repo.Search(r.Context(), query, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

type saveRequest struct {
	Tenant  string  `json:"tenant"`
	URL     string  `json:"url"`
	Title   *string `json:"title"`
	Content string  `json:"content"`
}

func (s *Server) savePage(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	repo, err := s.repoFor(r, req.Tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	page, err := repo.Save(r.Context(), req.URL, req.Content, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           page.ID,
		"content_hash": page.ContentHash,
	})
}

type filterRequest struct {
	Tenant       string   `json:"tenant"`
	Include      []string `json:"include"`
	Exclude      []string `json:"exclude"`
	PreviewLimit int      `json:"preview_limit"`
}

// empty applies the same trimming the repository does, so a request made
// only of blank keywords is rejected here instead of degrading into an
// unconstrained predicate downstream.
func (f filterRequest) empty() bool {
	for _, kw := range append(append([]string{}, f.Include...), f.Exclude...) {
		if strings.TrimSpace(kw) != "" {
			return false
		}
	}
	return true
}

func (s *Server) filterPreview(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.empty() {
		writeError(w, http.StatusBadRequest, "at least one include or exclude keyword is required")
		return
	}

	repo, err := s.repoFor(r, req.Tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res, err := repo.FilterPreview(r.Context(), req.Include, req.Exclude, req.PreviewLimit)
	if err != nil {
		writeFilterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeFilterError keeps the repo's keyword refusal a client error.
func writeFilterError(w http.ResponseWriter, err error) {
	if errors.Is(err, pages.ErrNoKeywords) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) filterDelete(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.empty() {
		writeError(w, http.StatusBadRequest, "at least one include or exclude keyword is required")
		return
	}

	repo, err := s.repoFor(r, req.Tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res, err := repo.FilterDelete(r.Context(), req.Include, req.Exclude)
	if err != nil {
		writeFilterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) searchJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := queryInt(r, "limit", s.cfg.Jobs.DefaultLimit)

	res, err := s.coordinator.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// invalidateJobsCache drops the cached aggregation for one query so the
// next search re-queries every source.
func (s *Server) invalidateJobsCache(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	s.coordinator.Invalidate(query)
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
