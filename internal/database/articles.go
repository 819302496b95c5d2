package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// InsertArticle stores an article. When the URL already exists the
// insert is skipped and inserted is false; only genuine failures
// return an error.
func (db *DB) InsertArticle(sourceID int64, a NewArticle) (id int64, inserted bool, err error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.conn.Exec(`
		INSERT INTO articles (source_id, url, title, content, author, published_date,
			summary, scraped_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sourceID, a.URL, a.Title,
		nullStr(a.Content), nullStr(a.Author), nullStr(a.PublishedDate), nullStr(a.Summary),
		now, now, now,
	)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("inserting article %q: %w", a.URL, err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("reading article id: %w", err)
	}
	return id, true, nil
}

// HasArticle reports whether an article with the given URL is stored.
func (db *DB) HasArticle(url string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM articles WHERE url = ?", url).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking article %q: %w", url, err)
	}
	return n > 0, nil
}

// ListLatest returns the most recently scraped articles with their
// source names, newest first.
func (db *DB) ListLatest(limit int) ([]Article, error) {
	rows, err := db.conn.Query(`
		SELECT a.id, a.source_id, s.name, a.url, a.title, a.content, a.author,
			a.published_date, a.summary, a.scraped_at, a.created_at, a.updated_at
		FROM articles a
		JOIN sources s ON s.id = a.source_id
		ORDER BY a.scraped_at DESC, a.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// SearchArticles finds articles whose title or content contains the
// keyword. Either bound of the published-date range may be empty.
func (db *DB) SearchArticles(keyword, fromDate, toDate string, limit int) ([]Article, error) {
	query := `
		SELECT a.id, a.source_id, s.name, a.url, a.title, a.content, a.author,
			a.published_date, a.summary, a.scraped_at, a.created_at, a.updated_at
		FROM articles a
		JOIN sources s ON s.id = a.source_id
		WHERE (a.title LIKE ? OR a.content LIKE ?)`
	pattern := "%" + keyword + "%"
	args := []any{pattern, pattern}

	if fromDate != "" {
		query += " AND a.published_date >= ?"
		args = append(args, fromDate)
	}
	if toDate != "" {
		query += " AND a.published_date <= ?"
		args = append(args, toDate)
	}
	query += " ORDER BY a.published_date DESC, a.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// CountArticles returns the number of stored articles per source name.
func (db *DB) CountArticles() (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT s.name, COUNT(a.id)
		FROM sources s
		LEFT JOIN articles a ON a.source_id = s.id
		GROUP BY s.id ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.SourceID, &a.SourceName, &a.URL, &a.Title,
			&a.Content, &a.Author, &a.PublishedDate, &a.Summary,
			&a.ScrapedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// nullStr maps "" to NULL so optional fields don't store empty strings.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
