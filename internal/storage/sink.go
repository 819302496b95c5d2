package storage

import (
	"context"
	"fmt"

	"github.com/vkarpenko/newscrawler/internal/adapter"
)

// BatchResult reports what a sink did with one batch.
type BatchResult struct {
	Saved   int
	Skipped int
}

// Sink persists batches of fetched articles.
type Sink interface {
	// StoreBatch writes a batch for one source. Articles that cannot
	// be stored individually (missing fields, duplicates) are counted
	// as skipped; an error means the backend itself failed.
	StoreBatch(ctx context.Context, sourceID int64, sourceName string, articles []adapter.Article) (BatchResult, error)

	// Deduplicates reports whether the sink rejects already-seen URLs,
	// which makes its counts authoritative for crawl stats.
	Deduplicates() bool

	Name() string
	Close() error
}

// Error wraps a backend failure so callers can tell storage trouble
// apart from fetch trouble.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage backend %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
