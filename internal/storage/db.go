package storage

import (
	"context"
	"log"

	"github.com/vkarpenko/newscrawler/internal/adapter"
	"github.com/vkarpenko/newscrawler/internal/database"
)

// DBSink stores articles in SQLite. The UNIQUE constraint on article
// URLs makes repeated crawls idempotent.
type DBSink struct {
	db *database.DB
}

// NewDBSink wraps an open database as a sink. The sink does not own
// the connection; closing the sink is a no-op.
func NewDBSink(db *database.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) StoreBatch(ctx context.Context, sourceID int64, sourceName string, articles []adapter.Article) (BatchResult, error) {
	var result BatchResult
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if a.URL == "" || a.Title == "" {
			result.Skipped++
			continue
		}

		_, inserted, err := s.db.InsertArticle(sourceID, database.NewArticle{
			URL:           a.URL,
			Title:         a.Title,
			Content:       a.Content,
			Author:        a.Author,
			PublishedDate: a.PublishedDate,
			Summary:       a.Summary,
		})
		if err != nil {
			return result, &Error{Backend: s.Name(), Err: err}
		}
		if inserted {
			result.Saved++
		} else {
			result.Skipped++
		}
	}

	log.Printf("stored batch for %s: %d saved, %d skipped", sourceName, result.Saved, result.Skipped)
	return result, nil
}

func (s *DBSink) Deduplicates() bool { return true }

func (s *DBSink) Name() string { return "db" }

func (s *DBSink) Close() error { return nil }
