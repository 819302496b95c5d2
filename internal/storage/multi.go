package storage

import (
	"context"
	"errors"

	"github.com/vkarpenko/newscrawler/internal/adapter"
)

// Multi fans batches out to several sinks. Crawl stats come from the
// first deduplicating sink so a CSV copy doesn't inflate the counts.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks. At least one is required.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) StoreBatch(ctx context.Context, sourceID int64, sourceName string, articles []adapter.Article) (BatchResult, error) {
	var result BatchResult
	counted := false

	for i, s := range m.sinks {
		r, err := s.StoreBatch(ctx, sourceID, sourceName, articles)
		if err != nil {
			return result, err
		}
		if !counted && (s.Deduplicates() || i == len(m.sinks)-1) {
			result = r
			counted = true
		}
	}
	return result, nil
}

func (m *Multi) Deduplicates() bool {
	for _, s := range m.sinks {
		if s.Deduplicates() {
			return true
		}
	}
	return false
}

func (m *Multi) Name() string { return "multi" }

// Close closes every sink, reporting the first failure.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
