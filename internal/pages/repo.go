// Package pages implements CRUD, search and keyword filtering over one
// tenant's page store.
package pages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatstash/chatstash/internal/stash"
	"github.com/chatstash/chatstash/internal/tenant"
)

// ErrNoKeywords is returned when include and exclude contain no usable
// keyword after trimming. It keeps an unconstrained predicate from ever
// matching, and deleting, the whole store.
var ErrNoKeywords = errors.New("no usable filter keywords")

const pageColumns = "id, url, title, content, status_code, content_hash, fetched_at, created_at, updated_at"

// Repo operates on a single tenant store handle.
type Repo struct {
	store  *tenant.Store
	hasher stash.Hasher
	clock  stash.Clock
}

// NewRepo builds a Repo over the given tenant store.
func NewRepo(store *tenant.Store, hasher stash.Hasher, clock stash.Clock) *Repo {
	return &Repo{store: store, hasher: hasher, clock: clock}
}

// TenantID reports which tenant store this repo operates on.
func (r *Repo) TenantID() string {
	return r.store.ID
}

// UpsertResult identifies the row an upsert landed on.
type UpsertResult struct {
	ID          int64  `json:"id"`
	ContentHash string `json:"content_hash"`
}

// Upsert inserts a new row or updates the existing row matched by url.
// The content hash is always recomputed so it can never go stale. Calling
// twice with identical inputs yields the same id and hash; only the
// fetched_at/updated_at timestamps move.
func (r *Repo) Upsert(ctx context.Context, url string, title *string, text string, statusCode *int) (UpsertResult, error) {
	now := r.clock.Now().Unix()
	contentHash, err := r.hasher.Hash([]byte(text))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("hash content: %w", err)
	}

	var id int64
	err = r.store.DB.QueryRowContext(ctx, `
		INSERT INTO pages (url, title, content, status_code, content_hash, fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			status_code = excluded.status_code,
			content_hash = excluded.content_hash,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
		RETURNING id`,
		url, nullString(title), text, nullInt(statusCode), contentHash, now, now, now,
	).Scan(&id)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert page %s: %w", url, err)
	}
	return UpsertResult{ID: id, ContentHash: contentHash}, nil
}

// Save is the manual single-row path used when the caller already has
// content. Status code stays null to mark the row as not fetched.
func (r *Repo) Save(ctx context.Context, url, content string, title *string) (stash.Page, error) {
	if _, err := r.Upsert(ctx, url, title, content, nil); err != nil {
		return stash.Page{}, err
	}
	return r.Get(ctx, url)
}

// Get returns the page stored under url.
func (r *Repo) Get(ctx context.Context, url string) (stash.Page, error) {
	row := r.store.DB.QueryRowContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE url = ?", url)
	page, err := scanPage(row)
	if err != nil {
		return stash.Page{}, fmt.Errorf("get page %s: %w", url, err)
	}
	return page, nil
}

// Search matches the query as a case-insensitive substring against title
// or content, newest first. An empty query returns no rows rather than a
// full scan.
func (r *Repo) Search(ctx context.Context, query string, limit, offset int) ([]stash.Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []stash.Page{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	needle := strings.ToLower(query)
	rows, err := r.store.DB.QueryContext(ctx, `
		SELECT `+pageColumns+` FROM pages
		WHERE instr(lower(coalesce(title, '')), ?) > 0 OR instr(lower(content), ?) > 0
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		needle, needle, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// ListAll reads the whole tenant store. Callers own the memory cost.
func (r *Repo) ListAll(ctx context.Context) ([]stash.Page, error) {
	rows, err := r.store.DB.QueryContext(ctx,
		"SELECT "+pageColumns+" FROM pages ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// FilterResult is a bounded preview plus the true match count.
type FilterResult struct {
	Items []stash.Page `json:"items"`
	Total int          `json:"total"`
}

// FilterPreview returns up to previewLimit matching rows and the total
// count of matches. The predicate is shared verbatim with FilterDelete so
// preview and delete always agree on the same row set.
func (r *Repo) FilterPreview(ctx context.Context, include, exclude []string, previewLimit int) (FilterResult, error) {
	if previewLimit <= 0 {
		previewLimit = 20
	}
	pred, args, err := filterPredicate(include, exclude)
	if err != nil {
		return FilterResult{}, err
	}

	var total int
	countArgs := append([]any{}, args...)
	if err := r.store.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pages WHERE "+pred, countArgs...,
	).Scan(&total); err != nil {
		return FilterResult{}, fmt.Errorf("count filtered pages: %w", err)
	}

	rows, err := r.store.DB.QueryContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE "+pred+" ORDER BY updated_at DESC, id DESC LIMIT ?",
		append(args, previewLimit)...,
	)
	if err != nil {
		return FilterResult{}, fmt.Errorf("preview filtered pages: %w", err)
	}
	defer rows.Close()

	items, err := collectPages(rows)
	if err != nil {
		return FilterResult{}, err
	}
	return FilterResult{Items: items, Total: total}, nil
}

// DeleteResult reports what FilterDelete removed.
type DeleteResult struct {
	DeletedCount int     `json:"deleted_count"`
	DeletedIDs   []int64 `json:"deleted_ids"`
}

// FilterDelete removes every row matching the FilterPreview predicate.
func (r *Repo) FilterDelete(ctx context.Context, include, exclude []string) (DeleteResult, error) {
	pred, args, err := filterPredicate(include, exclude)
	if err != nil {
		return DeleteResult{}, err
	}

	rows, err := r.store.DB.QueryContext(ctx,
		"DELETE FROM pages WHERE "+pred+" RETURNING id", args...,
	)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete filtered pages: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return DeleteResult{}, fmt.Errorf("scan deleted id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return DeleteResult{}, fmt.Errorf("iterate deleted ids: %w", err)
	}
	return DeleteResult{DeletedCount: len(ids), DeletedIDs: ids}, nil
}

// filterPredicate builds the shared keyword predicate: at least one include
// keyword (OR) when include is non-empty, and none of the exclude keywords.
// Matching is plain case-insensitive substring over title and content.
// Keywords that are blank after trimming are discarded; if nothing usable
// remains the predicate is refused rather than degraded to match-all.
func filterPredicate(include, exclude []string) (string, []any, error) {
	var clauses []string
	var args []any

	if kws := cleanKeywords(include); len(kws) > 0 {
		ors := make([]string, len(kws))
		for i, kw := range kws {
			ors[i] = "(instr(lower(coalesce(title, '')), ?) > 0 OR instr(lower(content), ?) > 0)"
			args = append(args, kw, kw)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	for _, kw := range cleanKeywords(exclude) {
		clauses = append(clauses, "NOT (instr(lower(coalesce(title, '')), ?) > 0 OR instr(lower(content), ?) > 0)")
		args = append(args, kw, kw)
	}
	if len(clauses) == 0 {
		return "", nil, ErrNoKeywords
	}
	return strings.Join(clauses, " AND "), args, nil
}

func cleanKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (stash.Page, error) {
	var (
		page      stash.Page
		title     sql.NullString
		status    sql.NullInt64
		fetchedAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&page.ID, &page.URL, &title, &page.Content,
		&status, &page.ContentHash, &fetchedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return stash.Page{}, err
	}
	if title.Valid {
		page.Title = &title.String
	}
	if status.Valid {
		code := int(status.Int64)
		page.StatusCode = &code
	}
	if fetchedAt.Valid {
		ts := time.Unix(fetchedAt.Int64, 0).UTC()
		page.FetchedAt = &ts
	}
	page.CreatedAt = time.Unix(createdAt, 0).UTC()
	page.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return page, nil
}

func collectPages(rows *sql.Rows) ([]stash.Page, error) {
	items := []stash.Page{}
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
