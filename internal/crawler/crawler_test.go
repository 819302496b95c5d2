package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/vkarpenko/newscrawler/internal/adapter"
	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/database"
	"github.com/vkarpenko/newscrawler/internal/fetch"
	"github.com/vkarpenko/newscrawler/internal/storage"
)

type fakeAdapter struct {
	candidates []string
	fail       map[string]error
	listErr    error
	closed     bool
}

func (f *fakeAdapter) ListCandidates(context.Context) ([]string, error) {
	return f.candidates, f.listErr
}

func (f *fakeAdapter) FetchOne(_ context.Context, u string) (*adapter.Article, error) {
	if err := f.fail[u]; err != nil {
		return nil, err
	}
	return &adapter.Article{URL: u, Title: "Title for " + u, Content: "Body."}, nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

type fakeSink struct {
	batches [][]adapter.Article
	err     error
}

func (f *fakeSink) StoreBatch(_ context.Context, _ int64, _ string, articles []adapter.Article) (storage.BatchResult, error) {
	if f.err != nil {
		return storage.BatchResult{}, f.err
	}
	batch := make([]adapter.Article, len(articles))
	copy(batch, articles)
	f.batches = append(f.batches, batch)
	return storage.BatchResult{Saved: len(articles)}, nil
}

func (f *fakeSink) Deduplicates() bool { return true }
func (f *fakeSink) Name() string       { return "fake" }
func (f *fakeSink) Close() error       { return nil }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig(sources ...config.Source) *config.Config {
	return &config.Config{
		Crawl:   config.Crawl{BatchSize: 10, MaxRetries: 1, TimeoutSeconds: 5},
		Sources: sources,
	}
}

func candidateURLs(n int) []string {
	var urls []string
	for i := 0; i < n; i++ {
		urls = append(urls, fmt.Sprintf("https://example.com/story-%d", i))
	}
	return urls
}

func newTestCrawler(t *testing.T, cfg *config.Config, sink storage.Sink, adapters map[string]*fakeAdapter) (*Crawler, *database.DB) {
	t.Helper()
	db := openTestDB(t)
	c := New(cfg, db, sink, adapter.DefaultRunParams())
	c.newAdapter = func(src config.Source, _ *fetch.Client, _ adapter.RunParams) (adapter.Adapter, error) {
		ad, ok := adapters[src.Name]
		if !ok {
			t.Fatalf("no fake adapter for source %q", src.Name)
		}
		return ad, nil
	}
	return c, db
}

func TestCrawlSourceFlushesInBatches(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	ad := &fakeAdapter{candidates: candidateURLs(25)}
	sink := &fakeSink{}
	c, db := newTestCrawler(t, testConfig(src), sink, map[string]*fakeAdapter{"One": ad})

	reg, _ := db.CreateSource(src.Name, src.URL, src.Adapter)
	stats, err := c.CrawlSource(context.Background(), src, reg.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Found != 25 || stats.Saved != 25 {
		t.Errorf("expected 25 found and saved, got %+v", stats)
	}
	if len(sink.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(sink.batches))
	}
	for i, want := range []int{10, 10, 5} {
		if len(sink.batches[i]) != want {
			t.Errorf("batch %d: expected %d articles, got %d", i, want, len(sink.batches[i]))
		}
	}
	if !ad.closed {
		t.Error("expected adapter closed after crawl")
	}
}

func TestCrawlSourceSkipsFailingCandidates(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	urls := candidateURLs(5)
	ad := &fakeAdapter{
		candidates: urls,
		fail:       map[string]error{urls[2]: fmt.Errorf("boom: %w", adapter.ErrNoData)},
	}
	sink := &fakeSink{}
	c, db := newTestCrawler(t, testConfig(src), sink, map[string]*fakeAdapter{"One": ad})

	reg, _ := db.CreateSource(src.Name, src.URL, src.Adapter)
	stats, err := c.CrawlSource(context.Background(), src, reg.ID)
	if err != nil {
		t.Fatalf("one bad candidate must not fail the source: %v", err)
	}
	if stats.Saved != 4 || stats.Skipped != 1 {
		t.Errorf("expected 4 saved / 1 skipped, got %+v", stats)
	}
}

func TestCrawlSourceAuthFailureAborts(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	urls := candidateURLs(3)
	ad := &fakeAdapter{
		candidates: urls,
		fail:       map[string]error{urls[0]: fmt.Errorf("401: %w", fetch.ErrAuth)},
	}
	sink := &fakeSink{}
	c, db := newTestCrawler(t, testConfig(src), sink, map[string]*fakeAdapter{"One": ad})

	reg, _ := db.CreateSource(src.Name, src.URL, src.Adapter)
	_, err := c.CrawlSource(context.Background(), src, reg.ID)
	if !errors.Is(err, fetch.ErrAuth) {
		t.Fatalf("expected auth failure to abort source, got %v", err)
	}
	if len(sink.batches) != 0 {
		t.Errorf("expected nothing stored, got %d batches", len(sink.batches))
	}
	if !ad.closed {
		t.Error("expected adapter closed on abort")
	}
}

func TestCrawlSourceStorageFailureAborts(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	ad := &fakeAdapter{candidates: candidateURLs(25)}
	sink := &fakeSink{err: &storage.Error{Backend: "db", Err: errors.New("disk full")}}
	c, db := newTestCrawler(t, testConfig(src), sink, map[string]*fakeAdapter{"One": ad})

	reg, _ := db.CreateSource(src.Name, src.URL, src.Adapter)
	_, err := c.CrawlSource(context.Background(), src, reg.ID)
	var serr *storage.Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected storage error to abort source, got %v", err)
	}
}

func TestCrawlSourceByID(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	ad := &fakeAdapter{candidates: candidateURLs(2)}
	sink := &fakeSink{}
	c, db := newTestCrawler(t, testConfig(src), sink, map[string]*fakeAdapter{"One": ad})

	reg, _ := db.CreateSource(src.Name, src.URL, src.Adapter)
	stats, err := c.CrawlSourceByID(context.Background(), reg.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Saved != 2 {
		t.Errorf("expected 2 saved, got %+v", stats)
	}

	got, _ := db.GetSource(reg.ID)
	if got.LastCrawled == nil {
		t.Error("expected crawl time recorded")
	}
}

func TestCrawlSourceByIDUnknown(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	c, _ := newTestCrawler(t, testConfig(src), &fakeSink{}, nil)

	if _, err := c.CrawlSourceByID(context.Background(), 42); err == nil {
		t.Fatal("expected error for unknown source id")
	}
}

func TestCrawlSourceByIDInactive(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	sink := &fakeSink{}
	c, db := newTestCrawler(t, testConfig(src), sink, nil)

	reg, _ := db.CreateSource(src.Name, src.URL, src.Adapter)
	if err := db.DeactivateSource(reg.ID); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}

	stats, err := c.CrawlSourceByID(context.Background(), reg.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Found != 0 || stats.Saved != 0 || len(sink.batches) != 0 {
		t.Errorf("expected zero stats for deactivated source, got %+v", stats)
	}
}

func TestCrawlAllContainsSourceFailure(t *testing.T) {
	good := config.Source{Name: "Good", URL: "https://good.example.com", Adapter: config.AdapterHTML}
	bad := config.Source{Name: "Bad", URL: "https://bad.example.com", Adapter: config.AdapterHTML}

	adapters := map[string]*fakeAdapter{
		"Good": {candidates: candidateURLs(2)},
		"Bad":  {listErr: errors.New("connection refused")},
	}
	sink := &fakeSink{}
	c, db := newTestCrawler(t, testConfig(bad, good), sink, adapters)

	summary, err := c.CrawlAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Errors != 1 {
		t.Errorf("expected 1 error, got %d", summary.Errors)
	}
	if summary.SourcesCrawled != 1 {
		t.Errorf("expected 1 source crawled, got %d", summary.SourcesCrawled)
	}
	if summary.Saved != 2 {
		t.Errorf("expected 2 saved from surviving source, got %d", summary.Saved)
	}

	reg, err := db.GetSourceByURL(good.URL)
	if err != nil || reg == nil {
		t.Fatalf("expected good source registered: %v", err)
	}
	if reg.LastCrawled == nil {
		t.Error("expected crawl time recorded for surviving source")
	}
}

func TestCrawlAllSkipsDeactivatedSource(t *testing.T) {
	src := config.Source{Name: "One", URL: "https://one.example.com", Adapter: config.AdapterHTML}
	ad := &fakeAdapter{candidates: candidateURLs(2)}
	sink := &fakeSink{}
	c, db := newTestCrawler(t, testConfig(src), sink, map[string]*fakeAdapter{"One": ad})

	reg, _ := db.CreateSource(src.Name, src.URL, src.Adapter)
	if err := db.DeactivateSource(reg.ID); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}

	summary, err := c.CrawlAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.SourcesCrawled != 0 || summary.Errors != 0 {
		t.Errorf("expected deactivated source skipped cleanly, got %+v", summary)
	}
	if len(sink.batches) != 0 {
		t.Errorf("expected nothing stored, got %d batches", len(sink.batches))
	}
}
