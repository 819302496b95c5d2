package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vkarpenko/newscrawler/internal/adapter"
)

var csvHeader = []string{
	"source", "url", "title", "author", "published_date", "summary", "content", "scraped_at",
}

// CSVSink appends articles to a timestamped CSV file, one file per
// crawl run. It never deduplicates; that's the database's job.
type CSVSink struct {
	path   string
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink creates the output directory and a fresh run file.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating csv directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("articles_%s.csv", time.Now().Format("20060102_150405")))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating csv file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing csv header: %w", err)
	}

	return &CSVSink{path: path, file: file, writer: writer}, nil
}

// Path returns the run file location.
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) StoreBatch(ctx context.Context, _ int64, sourceName string, articles []adapter.Article) (BatchResult, error) {
	var result BatchResult
	scrapedAt := time.Now().UTC().Format(time.RFC3339)

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if a.URL == "" || a.Title == "" {
			result.Skipped++
			continue
		}

		row := []string{
			sourceName,
			a.URL,
			flatten(a.Title),
			flatten(a.Author),
			a.PublishedDate,
			flatten(a.Summary),
			flatten(a.Content),
			scrapedAt,
		}
		if err := s.writer.Write(row); err != nil {
			return result, &Error{Backend: s.Name(), Err: err}
		}
		result.Saved++
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return result, &Error{Backend: s.Name(), Err: err}
	}
	return result, nil
}

func (s *CSVSink) Deduplicates() bool { return false }

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// flatten collapses newlines and repeated whitespace so spreadsheet
// tools don't choke on multi-line cells.
func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
