package database

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateSource registers a source, returning the existing row when the
// URL is already known. Registration is idempotent on URL.
func (db *DB) CreateSource(name, url, adapter string) (*Source, error) {
	existing, err := db.GetSourceByURL(url)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.conn.Exec(`
		INSERT INTO sources (name, url, adapter, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		name, url, adapter, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting source %q: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading source id: %w", err)
	}

	return db.GetSource(id)
}

// GetSource returns a source by ID, or nil if it doesn't exist.
func (db *DB) GetSource(id int64) (*Source, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, url, adapter, is_active, last_crawled, created_at, updated_at
		FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// GetSourceByURL returns a source by URL, or nil if it doesn't exist.
func (db *DB) GetSourceByURL(url string) (*Source, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, url, adapter, is_active, last_crawled, created_at, updated_at
		FROM sources WHERE url = ?`, url)
	return scanSource(row)
}

// ListSources returns all sources. With activeOnly set, deactivated
// sources are excluded.
func (db *DB) ListSources(activeOnly bool) ([]Source, error) {
	query := `
		SELECT id, name, url, adapter, is_active, last_crawled, created_at, updated_at
		FROM sources`
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id"

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.Adapter, &s.IsActive,
			&s.LastCrawled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// MarkCrawled records a successful crawl completion time for a source.
func (db *DB) MarkCrawled(id int64, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)
	_, err := db.conn.Exec(
		"UPDATE sources SET last_crawled = ?, updated_at = ? WHERE id = ?",
		ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("marking source %d crawled: %w", id, err)
	}
	return nil
}

// DeactivateSource excludes a source from future crawls without
// removing its articles.
func (db *DB) DeactivateSource(id int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.conn.Exec(
		"UPDATE sources SET is_active = 0, updated_at = ? WHERE id = ?",
		now, id,
	)
	if err != nil {
		return fmt.Errorf("deactivating source %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivating source %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("source %d not found", id)
	}
	return nil
}

func scanSource(row *sql.Row) (*Source, error) {
	var s Source
	err := row.Scan(&s.ID, &s.Name, &s.URL, &s.Adapter, &s.IsActive,
		&s.LastCrawled, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning source: %w", err)
	}
	return &s, nil
}
