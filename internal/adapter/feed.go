package adapter

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/fetch"
)

// feedAdapter reads RSS/Atom feeds. Entries with thin content get
// enriched by fetching the article page and running readability on it.
type feedAdapter struct {
	src    config.Source
	client *fetch.Client
	cache  map[string]*Article
}

func newFeedAdapter(src config.Source, client *fetch.Client) *feedAdapter {
	return &feedAdapter{src: src, client: client, cache: make(map[string]*Article)}
}

func (a *feedAdapter) ListCandidates(ctx context.Context) ([]string, error) {
	body, err := a.client.Get(ctx, a.src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching feed for %s: %w", a.src.Name, err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed for %s: %w", a.src.Name, err)
	}

	max := a.src.MaxCandidates
	if max <= 0 {
		max = defaultMaxCandidates
	}

	var order []string
	for _, item := range feed.Items {
		if len(order) >= max {
			break
		}
		art := feedItemArticle(item)
		if art == nil {
			continue
		}
		if a.src.URLSubstring != "" && !strings.Contains(art.URL, a.src.URLSubstring) {
			continue
		}
		if _, ok := a.cache[art.URL]; ok {
			continue
		}
		a.cache[art.URL] = art
		order = append(order, art.URL)
	}

	return order, nil
}

func feedItemArticle(item *gofeed.Item) *Article {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil
	}

	var pubDate string
	if item.PublishedParsed != nil {
		pubDate = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		pubDate = item.UpdatedParsed.Format("2006-01-02")
	}

	var content string
	if item.Content != "" {
		content = flattenHTML(item.Content)
	} else if item.Description != "" {
		content = flattenHTML(item.Description)
	}

	var author string
	if item.Author != nil {
		author = strings.TrimSpace(item.Author.Name)
	}

	return &Article{
		URL:           link,
		Title:         title,
		Content:       content,
		Author:        author,
		PublishedDate: pubDate,
		Summary:       summarize(content),
	}
}

func (a *feedAdapter) FetchOne(ctx context.Context, articleURL string) (*Article, error) {
	art, ok := a.cache[articleURL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", articleURL, ErrNoData)
	}

	// Feeds often carry only a teaser. Pull the page for the full text,
	// but keep the feed content when extraction comes up empty.
	if len(art.Content) < 100 {
		body, err := a.client.Get(ctx, articleURL, nil)
		if err != nil {
			log.Printf("feed enrichment failed for %s: %v", articleURL, err)
			return art, nil
		}
		if text := readableText(body, articleURL); text != "" {
			enriched := *art
			enriched.Content = text
			if enriched.Summary == "" {
				enriched.Summary = summarize(text)
			}
			return &enriched, nil
		}
	}

	return art, nil
}

// flattenHTML strips tags and collapses whitespace in feed bodies.
func flattenHTML(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	s := b.String()
	for entity, repl := range map[string]string{
		"&nbsp;": " ", "&amp;": "&", "&lt;": "<",
		"&gt;": ">", "&quot;": `"`, "&#39;": "'",
	} {
		s = strings.ReplaceAll(s, entity, repl)
	}

	return strings.Join(strings.Fields(s), " ")
}

func (a *feedAdapter) Close() error { return nil }
