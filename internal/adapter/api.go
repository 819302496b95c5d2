package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/fetch"
)

const (
	defaultPageSize = 10
	defaultMaxPages = 10
)

// apiAdapter pulls articles from a NewsAPI-compatible JSON endpoint.
// Pagination runs during listing; the fetched articles are cached so
// FetchOne never goes back to the network.
type apiAdapter struct {
	src       config.Source
	client    *fetch.Client
	apiKey    string
	pageStart int
	pageEnd   int
	cache     map[string]*Article
}

func newAPIAdapter(src config.Source, client *fetch.Client, pageStart, pageEnd int) *apiAdapter {
	return &apiAdapter{
		src:       src,
		client:    client,
		apiKey:    os.Getenv(src.API.APIKeyEnv),
		pageStart: pageStart,
		pageEnd:   pageEnd,
		cache:     make(map[string]*Article),
	}
}

// apiResponse mirrors the NewsAPI everything-endpoint payload.
type apiResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		Author      string `json:"author"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (a *apiAdapter) ListCandidates(ctx context.Context) ([]string, error) {
	// Without a key every request would 401; fail the source up front
	// so the run reports it instead of recording an empty crawl.
	if a.apiKey == "" {
		return nil, fmt.Errorf("source %q: API key not set in $%s", a.src.Name, a.src.API.APIKeyEnv)
	}

	pageSize := a.src.API.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPages := a.src.API.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	// Run-level page bounds override the configured window.
	first, last := 1, maxPages
	if a.pageStart > 0 {
		first = a.pageStart
	}
	if a.pageEnd > 0 {
		last = a.pageEnd
	} else if a.pageStart > 0 {
		last = a.pageStart + maxPages - 1
	}

	var order []string
	fetched := 0
	for page := first; page <= last; page++ {
		resp, err := a.fetchPage(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		if resp.Status != "ok" {
			// The API refused politely; keep what earlier pages gave us.
			log.Printf("source %q: API status %q (%s), stopping pagination",
				a.src.Name, resp.Status, resp.Message)
			break
		}
		if len(resp.Articles) == 0 {
			break
		}

		for _, raw := range resp.Articles {
			art := normalizeAPIArticle(raw.URL, raw.Title, raw.Description, raw.Content,
				raw.Author, raw.PublishedAt)
			if art == nil {
				continue
			}
			if _, ok := a.cache[art.URL]; ok {
				continue
			}
			a.cache[art.URL] = art
			order = append(order, art.URL)
		}

		fetched += len(resp.Articles)
		if fetched >= resp.TotalResults {
			break
		}
	}

	return order, nil
}

func (a *apiAdapter) fetchPage(ctx context.Context, page, pageSize int) (*apiResponse, error) {
	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	if a.src.API.Query != "" {
		params.Set("q", a.src.API.Query)
	}
	if a.src.API.Language != "" {
		params.Set("language", a.src.API.Language)
	}
	if a.src.API.SortBy != "" {
		params.Set("sortBy", a.src.API.SortBy)
	}

	body, err := a.client.Get(ctx, a.src.API.Endpoint+"?"+params.Encode(),
		map[string]string{"X-Api-Key": a.apiKey})
	if err != nil {
		return nil, fmt.Errorf("source %q page %d: %w", a.src.Name, page, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("source %q page %d: decoding response: %w", a.src.Name, page, err)
	}
	return &resp, nil
}

func normalizeAPIArticle(rawURL, title, description, content, author, publishedAt string) *Article {
	if rawURL == "" || title == "" {
		return nil
	}
	// NewsAPI tombstones removed articles instead of omitting them.
	if title == "[Removed]" || rawURL == "https://removed.com" {
		return nil
	}

	if content == "" {
		content = description
	}
	content = strings.TrimSpace(content)

	var pubDate string
	if publishedAt != "" {
		if t, err := time.Parse(time.RFC3339, publishedAt); err == nil {
			pubDate = t.Format("2006-01-02")
		}
	}

	summary := strings.TrimSpace(description)
	if summary == "" {
		summary = summarize(content)
	}

	return &Article{
		URL:           rawURL,
		Title:         strings.TrimSpace(title),
		Content:       content,
		Author:        strings.TrimSpace(author),
		PublishedDate: pubDate,
		Summary:       summary,
	}
}

func (a *apiAdapter) FetchOne(_ context.Context, articleURL string) (*Article, error) {
	art, ok := a.cache[articleURL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", articleURL, ErrNoData)
	}
	return art, nil
}

func (a *apiAdapter) Close() error { return nil }
