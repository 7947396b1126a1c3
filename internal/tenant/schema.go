package tenant

import (
	"database/sql"
	"fmt"
)

// Baseline schema for new stores. Timestamps are unix seconds.
const schema = `
CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	title TEXT,
	content TEXT NOT NULL DEFAULT '',
	status_code INTEGER,
	content_hash TEXT NOT NULL DEFAULT '',
	fetched_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_updated ON pages(updated_at);
`

// Columns added after the initial release. Existing stores pick these up
// additively; CREATE TABLE above already carries them for new stores.
var addedColumns = []struct {
	name string
	ddl  string
}{
	{"status_code", "ALTER TABLE pages ADD COLUMN status_code INTEGER"},
	{"fetched_at", "ALTER TABLE pages ADD COLUMN fetched_at INTEGER"},
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, col := range addedColumns {
		var count int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM pragma_table_info('pages') WHERE name = ?`, col.name,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("inspect column %s: %w", col.name, err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.Exec(col.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}
