package database

import "database/sql"

// migration is a single schema change applied inside a transaction.
type migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations must stay in ascending version order. Never edit an applied
// migration; append a new one instead.
var migrations = []migration{
	{
		Version:     1,
		Description: "create sources and articles tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	adapter TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	last_crawled TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL REFERENCES sources(id),
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	content TEXT,
	author TEXT,
	published_date TEXT,
	summary TEXT,
	scraped_at TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id);
CREATE INDEX IF NOT EXISTS idx_articles_published_date ON articles(published_date);
CREATE INDEX IF NOT EXISTS idx_articles_scraped_at ON articles(scraped_at);
`)
			return err
		},
	},
}

func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
