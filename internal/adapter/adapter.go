package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/fetch"
)

// ErrNoData marks a page that yielded no extractable article. The
// candidate is skipped; the crawl goes on.
var ErrNoData = errors.New("no extractable data")

// Article is the normalized shape every adapter produces.
type Article struct {
	URL           string
	Title         string
	Content       string
	Author        string
	PublishedDate string // YYYY-MM-DD or empty
	Summary       string
}

// Adapter turns one configured source into article candidates and
// fetches them one at a time. Implementations may hold per-crawl state
// (browser sessions, API page caches); Close releases it.
type Adapter interface {
	ListCandidates(ctx context.Context) ([]string, error)
	FetchOne(ctx context.Context, articleURL string) (*Article, error)
	Close() error
}

// DateRange is an inclusive day window for date-indexed listings.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Today returns a single-day range covering the current day.
func Today() DateRange {
	now := time.Now()
	return DateRange{Start: now, End: now}
}

// RunParams carries per-run bounds. Dates drive archive adapters; the
// page bounds override the configured page window for API adapters.
// Zero page values mean "use the source defaults".
type RunParams struct {
	Dates     DateRange
	PageStart int
	PageEnd   int
}

// DefaultRunParams covers today with the sources' own page windows.
func DefaultRunParams() RunParams {
	return RunParams{Dates: Today()}
}

// New builds the adapter for a source based on its configured kind.
func New(src config.Source, client *fetch.Client, params RunParams) (Adapter, error) {
	switch src.Adapter {
	case config.AdapterHTML:
		return newHTMLAdapter(src, client), nil
	case config.AdapterArchive:
		return newArchiveAdapter(src, client, params.Dates), nil
	case config.AdapterBrowser:
		return newBrowserAdapter(src), nil
	case config.AdapterAPI:
		return newAPIAdapter(src, client, params.PageStart, params.PageEnd), nil
	case config.AdapterFeed:
		return newFeedAdapter(src, client), nil
	default:
		return nil, fmt.Errorf("unknown adapter kind %q for source %q", src.Adapter, src.Name)
	}
}

const (
	defaultMaxCandidates = 20
	summaryRunes         = 200
)

// dedupe keeps the first occurrence of each URL, preserving listing order.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// resolveURL makes href absolute against the listing page URL.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}

// summarize returns the first part of content as a short teaser.
func summarize(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= summaryRunes {
		return string(runes)
	}
	return string(runes[:summaryRunes]) + "..."
}

// normalizeDate parses free-form date text into YYYY-MM-DD, returning
// "" when the text is unparseable.
func normalizeDate(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	t, err := dateparse.ParseAny(text)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// urlDatePattern matches /YYYY/MM/DD/ path segments used by many news sites.
var urlDatePattern = regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`)

// dateFromURL extracts a publication date embedded in the article URL.
func dateFromURL(articleURL string) string {
	m := urlDatePattern.FindStringSubmatch(articleURL)
	if m == nil {
		return ""
	}
	t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
