package adapter

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/vkarpenko/newscrawler/internal/config"
)

const defaultWaitTimeout = 10 * time.Second

// browserAdapter drives a headless Chrome session for pages that only
// render their listings client-side. The browser starts lazily on the
// first listing call and lives until Close.
type browserAdapter struct {
	src config.Source

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context

	// cache keeps listing-page teasers keyed by URL; they back fill
	// articles whose own page yields too little text.
	cache map[string]*Article
}

func newBrowserAdapter(src config.Source) *browserAdapter {
	return &browserAdapter{src: src, cache: make(map[string]*Article)}
}

// ensureSession starts Chrome on first use.
func (a *browserAdapter) ensureSession() error {
	if a.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Starting the browser can fail outright (no Chrome installed);
	// surface that now instead of on the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("starting browser for %s: %w", a.src.Name, err)
	}

	a.allocCancel = allocCancel
	a.browserCancel = browserCancel
	a.browserCtx = browserCtx

	if a.src.Browser.Login != nil {
		a.login()
	}
	return nil
}

// login signs in using credentials from the environment. A failed
// login is logged and ignored: most content is readable without it.
func (a *browserAdapter) login() {
	cfg := a.src.Browser.Login
	email := os.Getenv(cfg.EmailEnv)
	password := os.Getenv(cfg.PasswordEnv)
	if email == "" || password == "" {
		log.Printf("source %q: login credentials not set ($%s/$%s), continuing without login",
			a.src.Name, cfg.EmailEnv, cfg.PasswordEnv)
		return
	}

	ctx, cancel := context.WithTimeout(a.browserCtx, 30*time.Second)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Navigate(cfg.URL),
		chromedp.WaitVisible(`input[type="email"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="email"]`, email, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="password"]`, password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		log.Printf("source %q: login failed, continuing without login: %v", a.src.Name, err)
		return
	}
	log.Printf("source %q: logged in", a.src.Name)
}

// listingItem is what the in-page collection script returns per link.
type listingItem struct {
	Href    string `json:"href"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Date    string `json:"date"`
}

func (a *browserAdapter) ListCandidates(ctx context.Context) ([]string, error) {
	if err := a.ensureSession(); err != nil {
		return nil, err
	}

	waitTimeout := defaultWaitTimeout
	if a.src.Browser.WaitTimeoutSeconds > 0 {
		waitTimeout = time.Duration(a.src.Browser.WaitTimeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(a.browserCtx, waitTimeout+30*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(a.src.URL)); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", a.src.URL, err)
	}
	if sel := a.src.Browser.ListWaitSelector; sel != "" {
		waitCtx, waitCancel := context.WithTimeout(runCtx, waitTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(sel, chromedp.ByQuery))
		waitCancel()
		if err != nil {
			return nil, fmt.Errorf("waiting for listing on %s: %w", a.src.Name, err)
		}
	}

	var items []listingItem
	if err := chromedp.Run(runCtx, chromedp.Evaluate(a.collectScript(), &items)); err != nil {
		return nil, fmt.Errorf("collecting listing from %s: %w", a.src.Name, err)
	}

	max := a.src.MaxCandidates
	if max <= 0 {
		max = defaultMaxCandidates
	}

	var order []string
	for _, item := range items {
		if len(order) >= max {
			break
		}
		href := strings.TrimSpace(item.Href)
		if href == "" || !strings.HasPrefix(href, "http") {
			continue
		}
		if a.src.URLSubstring != "" && !strings.Contains(href, a.src.URLSubstring) {
			continue
		}
		if _, ok := a.cache[href]; ok {
			continue
		}
		a.cache[href] = &Article{
			URL:           href,
			Title:         strings.TrimSpace(item.Title),
			Summary:       strings.TrimSpace(item.Summary),
			PublishedDate: normalizeDate(item.Date),
		}
		order = append(order, href)
	}

	return order, nil
}

// collectScript builds the in-page script that gathers link, teaser
// and date text for each listing entry.
func (a *browserAdapter) collectScript() string {
	linkSel := a.src.Browser.LinkSelector
	if linkSel == "" {
		linkSel = "a[href]"
	}
	return fmt.Sprintf(`(() => {
	const pick = (root, sel) => {
		if (!sel || !root) return '';
		const el = root.querySelector(sel);
		return el ? el.innerText.trim() : '';
	};
	return Array.from(document.querySelectorAll(%q)).map(a => {
		const item = a.closest('li, article, div') || a;
		return {
			href: a.href || '',
			title: (a.innerText || '').trim(),
			summary: pick(item, %q),
			date: pick(item, %q),
		};
	});
})()`, linkSel, a.src.Browser.SummarySelector, a.src.Browser.DateSelector)
}

func (a *browserAdapter) FetchOne(ctx context.Context, articleURL string) (*Article, error) {
	cached, ok := a.cache[articleURL]
	if !ok {
		cached = &Article{URL: articleURL}
	}

	if !a.src.Browser.FetchArticlePages {
		if cached.Title == "" {
			return nil, fmt.Errorf("%s: %w", articleURL, ErrNoData)
		}
		if cached.Content == "" {
			cached.Content = cached.Summary
		}
		return cached, nil
	}

	if err := a.ensureSession(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(a.browserCtx, 45*time.Second)
	defer cancel()

	var title, content string
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(articleURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`(document.querySelector('h1') || {innerText: ''}).innerText.trim()`, &title),
		chromedp.Evaluate(a.contentScript(), &content),
	); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", articleURL, err)
	}

	if title == "" {
		title = cached.Title
	}
	// A paywalled or consent-gated page renders almost nothing; the
	// listing teaser is more honest than a cookie banner.
	if len(content) < 100 {
		content = cached.Summary
	}
	if title == "" {
		return nil, fmt.Errorf("%s: %w", articleURL, ErrNoData)
	}

	summary := cached.Summary
	if summary == "" {
		summary = summarize(content)
	}

	return &Article{
		URL:           articleURL,
		Title:         title,
		Content:       content,
		PublishedDate: cached.PublishedDate,
		Summary:       summary,
	}, nil
}

// contentScript tries each configured content selector in order.
func (a *browserAdapter) contentScript() string {
	selectors := a.src.Browser.ContentSelectors
	if len(selectors) == 0 {
		selectors = []string{"article", "main"}
	}
	var quoted []string
	for _, s := range selectors {
		quoted = append(quoted, fmt.Sprintf("%q", s))
	}
	return fmt.Sprintf(`(() => {
	for (const sel of [%s]) {
		const el = document.querySelector(sel);
		if (el && el.innerText.trim().length > 0) return el.innerText.trim();
	}
	return '';
})()`, strings.Join(quoted, ", "))
}

func (a *browserAdapter) Close() error {
	if a.browserCancel != nil {
		a.browserCancel()
	}
	if a.allocCancel != nil {
		a.allocCancel()
	}
	a.browserCtx = nil
	return nil
}
