package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/fetch"
)

// htmlAdapter scrapes server-rendered pages with CSS selectors.
type htmlAdapter struct {
	src    config.Source
	client *fetch.Client
}

func newHTMLAdapter(src config.Source, client *fetch.Client) *htmlAdapter {
	return &htmlAdapter{src: src, client: client}
}

func (a *htmlAdapter) ListCandidates(ctx context.Context) ([]string, error) {
	body, err := a.client.Get(ctx, a.src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", a.src.Name, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing listing for %s: %w", a.src.Name, err)
	}
	return a.extractLinks(doc, a.src.URL), nil
}

// extractLinks tries each listing selector in turn and keeps the first
// one that matches anything. Relative hrefs are resolved against the
// listing page, filtered by the configured URL substring, deduplicated
// in order and capped.
func (a *htmlAdapter) extractLinks(doc *goquery.Document, pageURL string) []string {
	var links []string
	for _, sel := range a.src.Selectors.List {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || href == "" {
				return
			}
			abs := resolveURL(pageURL, href)
			if abs == "" || !strings.HasPrefix(abs, "http") {
				return
			}
			if a.src.URLSubstring != "" && !strings.Contains(abs, a.src.URLSubstring) {
				return
			}
			links = append(links, abs)
		})
		if len(links) > 0 {
			break
		}
	}

	links = dedupe(links)

	max := a.src.MaxCandidates
	if max <= 0 {
		max = defaultMaxCandidates
	}
	if len(links) > max {
		links = links[:max]
	}
	return links
}

func (a *htmlAdapter) FetchOne(ctx context.Context, articleURL string) (*Article, error) {
	body, err := a.client.Get(ctx, articleURL, nil)
	if err != nil {
		return nil, err
	}
	return a.parseArticle(body, articleURL)
}

func (a *htmlAdapter) parseArticle(body []byte, articleURL string) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", articleURL, err)
	}

	title := firstText(doc, a.src.Selectors.Title)
	content := joinedText(doc, a.src.Selectors.Content)

	// Selector miss happens when a site redesigns; readability usually
	// still finds the body text.
	if content == "" {
		content = readableText(body, articleURL)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	// Only the title is mandatory; plenty of sources paywall or truncate
	// the body and the headline alone is still worth storing.
	if title == "" {
		return nil, fmt.Errorf("%s: %w", articleURL, ErrNoData)
	}

	author := ""
	if a.src.Selectors.Author != "" {
		author = strings.TrimSpace(doc.Find(a.src.Selectors.Author).First().Text())
	}

	return &Article{
		URL:           articleURL,
		Title:         title,
		Content:       content,
		Author:        author,
		PublishedDate: a.extractDate(doc, articleURL),
		Summary:       summarize(content),
	}, nil
}

// extractDate tries the configured selector, then standard meta tags,
// then a date embedded in the URL path.
func (a *htmlAdapter) extractDate(doc *goquery.Document, articleURL string) string {
	if sel := a.src.Selectors.Date; sel != "" {
		node := doc.Find(sel).First()
		if attr := a.src.Selectors.DateAttribute; attr != "" {
			if v, ok := node.Attr(attr); ok {
				if d := normalizeDate(v); d != "" {
					return d
				}
			}
		}
		if d := normalizeDate(node.Text()); d != "" {
			return d
		}
	}
	if d := metaDate(doc); d != "" {
		return d
	}
	return dateFromURL(articleURL)
}

// metaDate reads the publication date from standard page metadata.
func metaDate(doc *goquery.Document) string {
	selectors := []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="publish-date"]`,
		`meta[itemprop="datePublished"]`,
		`time[datetime]`,
	}
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		v, ok := node.Attr("content")
		if !ok {
			v, ok = node.Attr("datetime")
		}
		if !ok {
			continue
		}
		if d := normalizeDate(v); d != "" {
			return d
		}
	}
	return ""
}

// firstText returns the text of the first selector that matches.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// joinedText concatenates paragraph text under the first matching
// container selector.
func joinedText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		container := doc.Find(sel)
		if container.Length() == 0 {
			continue
		}

		var parts []string
		container.Find("p").Each(func(_ int, p *goquery.Selection) {
			if t := strings.TrimSpace(p.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) == 0 {
			if t := strings.TrimSpace(container.First().Text()); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return ""
}

// readableText runs readability extraction as a last resort.
func readableText(body []byte, articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil {
		return ""
	}
	art, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		log.Printf("readability failed for %s: %v", articleURL, err)
		return ""
	}
	text := strings.TrimSpace(art.TextContent)
	if len(text) < 100 {
		return ""
	}
	return text
}

func (a *htmlAdapter) Close() error { return nil }
