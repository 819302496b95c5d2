package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/fetch"
)

// archiveAdapter walks a date-indexed archive, fetching one listing
// page per day in the window. It reuses the selector scraping of the
// plain HTML adapter for the articles themselves.
type archiveAdapter struct {
	htmlAdapter
	window DateRange

	// archiveDay remembers which listing day produced each URL so the
	// day can stand in for a missing publication date.
	archiveDay map[string]string
}

func newArchiveAdapter(src config.Source, client *fetch.Client, window DateRange) *archiveAdapter {
	return &archiveAdapter{
		htmlAdapter: htmlAdapter{src: src, client: client},
		window:      window,
		archiveDay:  make(map[string]string),
	}
}

func (a *archiveAdapter) ListCandidates(ctx context.Context) ([]string, error) {
	layout := a.src.Archive.DateLayout
	if layout == "" {
		layout = "2006/01/02"
	}

	start := truncateDay(a.window.Start)
	end := truncateDay(a.window.End)
	if end.Before(start) {
		return nil, fmt.Errorf("source %q: archive range end before start", a.src.Name)
	}

	var all []string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		pageURL := strings.ReplaceAll(a.src.Archive.URLTemplate, "{date}", day.Format(layout))

		links, err := a.listDay(ctx, pageURL)
		if err != nil {
			// One bad day shouldn't sink the rest of the window.
			log.Printf("archive listing failed for %s: %v", pageURL, err)
			continue
		}

		dayStr := day.Format("2006-01-02")
		for _, u := range links {
			if _, ok := a.archiveDay[u]; !ok {
				a.archiveDay[u] = dayStr
			}
		}
		all = append(all, links...)
	}

	return dedupe(all), nil
}

func (a *archiveAdapter) listDay(ctx context.Context, pageURL string) ([]string, error) {
	body, err := a.client.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing listing: %w", err)
	}
	return a.extractLinks(doc, pageURL), nil
}

func (a *archiveAdapter) FetchOne(ctx context.Context, articleURL string) (*Article, error) {
	art, err := a.htmlAdapter.FetchOne(ctx, articleURL)
	if err != nil {
		return nil, err
	}
	// The page and URL said nothing; the archive day it was listed
	// under is the best remaining estimate.
	if art.PublishedDate == "" {
		art.PublishedDate = a.archiveDay[articleURL]
	}
	return art, nil
}

// truncateDay maps a time to midnight UTC of its calendar day. Range
// bounds can arrive in different locations (CLI dates parse as UTC,
// the default window uses local time); comparing calendar days in one
// location keeps the window inclusive either way.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
