package reconcile

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"showtime-scraper/browser"
)

// LiveSearcher runs listing searches against the ticketing site through
// the shared browser pool.
type LiveSearcher struct {
	pool       *browser.Pool
	baseURL    string
	maxRetries int
}

func NewLiveSearcher(pool *browser.Pool, baseURL string) *LiveSearcher {
	return &LiveSearcher{pool: pool, baseURL: strings.TrimRight(baseURL, "/"), maxRetries: 2}
}

// candidateScript pulls theater listings off a search-results page.
// Both search modes render the same result markup, so one extractor
// serves both stages.
const candidateScript = `(() => {
	const normalize = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const out = [];
	const seen = new Set();
	const cards = Array.from(document.querySelectorAll(
		'[data-testid="theater-result"], .theater-result, li.theater, .theatre-listing'));
	const consider = (name, href) => {
		name = normalize(name);
		href = normalize(href);
		if (!name || !href || seen.has(href)) return;
		seen.add(href);
		out.push({ name, url: href });
	};
	for (const card of cards) {
		const a = card.querySelector('a[href*="/theater"], a[href*="/theatre"], a[href*="/cinema"], a[href]');
		if (!a) continue;
		consider(a.getAttribute('aria-label') || a.textContent, a.href);
	}
	if (out.length === 0) {
		for (const a of document.querySelectorAll('a[href*="/theaters/"], a[href*="/theatres/"]')) {
			consider(a.getAttribute('aria-label') || a.textContent, a.href);
		}
	}
	return out;
})();`

func (s *LiveSearcher) SearchByPostalCode(ctx context.Context, postalCode, date string) ([]Candidate, error) {
	u, err := url.Parse(s.baseURL + "/theaters")
	if err != nil {
		return nil, fmt.Errorf("build postal-code search url: %w", err)
	}
	q := u.Query()
	q.Set("zipcode", postalCode)
	q.Set("date", date)
	u.RawQuery = q.Encode()
	return s.search(ctx, u.String())
}

func (s *LiveSearcher) SearchByName(ctx context.Context, name string) ([]Candidate, error) {
	u, err := url.Parse(s.baseURL + "/theaters")
	if err != nil {
		return nil, fmt.Errorf("build name search url: %w", err)
	}
	q := u.Query()
	q.Set("query", name)
	u.RawQuery = q.Encode()
	return s.search(ctx, u.String())
}

func (s *LiveSearcher) search(ctx context.Context, pageURL string) ([]Candidate, error) {
	var raw []map[string]string
	err := s.withRetry(ctx, pageURL, func(runCtx context.Context) error {
		return s.pool.WithPage(runCtx, func(pageCtx context.Context) error {
			return chromedp.Run(pageCtx,
				chromedp.Navigate(pageURL),
				chromedp.Sleep(2*time.Second),
				chromedp.Evaluate(candidateScript, &raw),
			)
		})
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(raw))
	for _, item := range raw {
		name := strings.TrimSpace(item["name"])
		href := strings.TrimSpace(item["url"])
		if name == "" || href == "" {
			continue
		}
		candidates = append(candidates, Candidate{Name: name, URL: href})
	}
	return candidates, nil
}

func (s *LiveSearcher) withRetry(ctx context.Context, pageURL string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries+1; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		backoff := time.Duration(attempt*attempt) * 400 * time.Millisecond
		time.Sleep(backoff)
	}
	return fmt.Errorf("retries exhausted for %s: %w", pageURL, lastErr)
}
