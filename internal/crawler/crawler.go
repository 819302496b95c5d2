package crawler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vkarpenko/newscrawler/internal/adapter"
	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/database"
	"github.com/vkarpenko/newscrawler/internal/fetch"
	"github.com/vkarpenko/newscrawler/internal/storage"
)

// SourceStats are the per-source crawl numbers.
type SourceStats struct {
	Name    string
	Found   int
	Saved   int
	Skipped int
}

// Summary aggregates one crawl cycle across all sources.
type Summary struct {
	SourcesCrawled int
	Found          int
	Saved          int
	Skipped        int
	Errors         int
	PerSource      []SourceStats
}

// Crawler runs the list-fetch-store cycle for configured sources.
type Crawler struct {
	cfg    *config.Config
	db     *database.DB
	sink   storage.Sink
	params adapter.RunParams

	// newAdapter is swappable for tests.
	newAdapter func(src config.Source, client *fetch.Client, params adapter.RunParams) (adapter.Adapter, error)
}

// New creates a Crawler storing through the given sink.
func New(cfg *config.Config, db *database.DB, sink storage.Sink, params adapter.RunParams) *Crawler {
	return &Crawler{
		cfg:        cfg,
		db:         db,
		sink:       sink,
		params:     params,
		newAdapter: adapter.New,
	}
}

// newClient builds the per-source HTTP client. Each source gets its
// own rate limiter, so the request delay applies per source rather
// than per remote host.
func (c *Crawler) newClient() *fetch.Client {
	return fetch.NewClient(fetch.Options{
		UserAgent:    c.cfg.Crawl.UserAgent,
		Timeout:      time.Duration(c.cfg.Crawl.TimeoutSeconds) * time.Second,
		MaxRetries:   c.cfg.Crawl.MaxRetries,
		RequestDelay: time.Duration(c.cfg.Crawl.RequestDelaySeconds * float64(time.Second)),
	})
}

// CrawlAll crawls every active configured source. A failing source is
// counted and logged; the rest of the cycle continues.
func (c *Crawler) CrawlAll(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	for _, src := range c.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		reg, err := c.db.CreateSource(src.Name, src.URL, src.Adapter)
		if err != nil {
			log.Printf("source %q: registration failed: %v", src.Name, err)
			summary.Errors++
			continue
		}
		if !reg.IsActive {
			log.Printf("source %q: deactivated, skipping", src.Name)
			continue
		}

		stats, err := c.CrawlSource(ctx, src, reg.ID)
		summary.PerSource = append(summary.PerSource, stats)
		summary.Found += stats.Found
		summary.Saved += stats.Saved
		summary.Skipped += stats.Skipped

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			log.Printf("source %q: crawl failed: %v", src.Name, err)
			summary.Errors++
			continue
		}

		summary.SourcesCrawled++
		if err := c.db.MarkCrawled(reg.ID, time.Now()); err != nil {
			log.Printf("source %q: failed to record crawl time: %v", src.Name, err)
		}
	}

	log.Printf("crawl cycle done: %d sources, %d found, %d saved, %d skipped, %d errors",
		summary.SourcesCrawled, summary.Found, summary.Saved, summary.Skipped, summary.Errors)
	return summary, nil
}

// CrawlSourceByID crawls a single registered source. An unknown id is
// an error; a deactivated source yields zero stats without crawling.
func (c *Crawler) CrawlSourceByID(ctx context.Context, id int64) (SourceStats, error) {
	reg, err := c.db.GetSource(id)
	if err != nil {
		return SourceStats{}, err
	}
	if reg == nil {
		return SourceStats{}, fmt.Errorf("source %d not found", id)
	}
	if !reg.IsActive {
		log.Printf("source %q: deactivated, skipping", reg.Name)
		return SourceStats{Name: reg.Name}, nil
	}

	src, ok := c.sourceConfig(reg.URL)
	if !ok {
		return SourceStats{Name: reg.Name}, fmt.Errorf("source %q (%s) has no configuration", reg.Name, reg.URL)
	}

	stats, err := c.CrawlSource(ctx, src, reg.ID)
	if err != nil {
		return stats, err
	}
	if err := c.db.MarkCrawled(reg.ID, time.Now()); err != nil {
		log.Printf("source %q: failed to record crawl time: %v", reg.Name, err)
	}
	return stats, nil
}

// sourceConfig finds the configured source matching a registered URL.
func (c *Crawler) sourceConfig(url string) (config.Source, bool) {
	for _, src := range c.cfg.Sources {
		if src.URL == url {
			return src, true
		}
	}
	return config.Source{}, false
}

// CrawlSource runs one source end to end: list candidates, fetch each
// article, store in batches. A candidate that fails to fetch is logged
// and skipped; authentication and storage failures abort the source.
func (c *Crawler) CrawlSource(ctx context.Context, src config.Source, sourceID int64) (SourceStats, error) {
	stats := SourceStats{Name: src.Name}

	ad, err := c.newAdapter(src, c.newClient(), c.params)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := ad.Close(); err != nil {
			log.Printf("source %q: adapter close failed: %v", src.Name, err)
		}
	}()

	candidates, err := ad.ListCandidates(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing candidates: %w", err)
	}
	stats.Found = len(candidates)
	log.Printf("source %q: %d candidates", src.Name, len(candidates))

	batchSize := c.cfg.Crawl.BatchSize
	batch := make([]adapter.Article, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := c.sink.StoreBatch(ctx, sourceID, src.Name, batch)
		stats.Saved += result.Saved
		stats.Skipped += result.Skipped
		batch = batch[:0]
		return err
	}

	for _, u := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		art, err := ad.FetchOne(ctx, u)
		if err != nil {
			if errors.Is(err, fetch.ErrAuth) {
				// Credentials are broken for the whole source.
				return stats, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			log.Printf("source %q: skipping %s: %v", src.Name, u, err)
			stats.Skipped++
			continue
		}

		batch = append(batch, *art)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, fmt.Errorf("storing batch: %w", err)
			}
		}
	}

	if err := flush(); err != nil {
		return stats, fmt.Errorf("storing batch: %w", err)
	}

	log.Printf("source %q: %d found, %d saved, %d skipped",
		src.Name, stats.Found, stats.Saved, stats.Skipped)
	return stats, nil
}
