package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// Config controls pool sizing and per-navigation bounds.
type Config struct {
	// MaxPages caps how many page handles run concurrently. Default 6.
	MaxPages int
	// NavTimeout bounds each page task, navigation and waits included.
	NavTimeout time.Duration
	// RatePerSecond throttles page-task starts against the target site.
	RatePerSecond float64
	RateBurst     int
	Headless      bool
	UserAgent     string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxPages <= 0 {
		out.MaxPages = 6
	}
	if out.NavTimeout <= 0 {
		out.NavTimeout = 15 * time.Second
	}
	if out.RatePerSecond <= 0 {
		out.RatePerSecond = 1.0
	}
	if out.RateBurst <= 0 {
		out.RateBurst = 2
	}
	if out.UserAgent == "" {
		out.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return out
}

// tabFactory creates an isolated page context off the shared browser
// context. Swappable so tests can run pool tasks without a browser.
type tabFactory func(parent context.Context) (context.Context, context.CancelFunc)

// Pool hands out isolated browser pages under a fixed concurrency cap.
// One exec allocator and browser context are shared for the whole run;
// each task gets its own tab, reclaimed on every exit path.
type Pool struct {
	cfg Config

	allocCtx     context.Context
	browserCtx   context.Context
	cancelAlloc  context.CancelFunc
	cancelBrowse context.CancelFunc

	slots   chan struct{}
	limiter *rate.Limiter
	newTab  tabFactory
}

// New launches the shared browser and verifies it responds. A launch
// failure is fatal to the run and returned to the caller.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
	)

	p := &Pool{
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxPages),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
	}
	p.allocCtx, p.cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	p.browserCtx, p.cancelBrowse = chromedp.NewContext(p.allocCtx)
	p.newTab = func(parent context.Context) (context.Context, context.CancelFunc) {
		return chromedp.NewContext(p.browserCtx)
	}

	// Force the browser process up now so launch failures surface here
	// instead of inside the first harvest task.
	probe, cancel := context.WithTimeout(p.browserCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(probe); err != nil {
		p.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.Debug("browser pool ready", "max_pages", cfg.MaxPages, "nav_timeout", cfg.NavTimeout)
	return p, nil
}

// newTestPool builds a pool whose tabs are plain contexts, for tests
// that exercise slot accounting without a browser.
func newTestPool(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxPages),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		newTab:  context.WithCancel,
	}
}

// WithPage blocks until a slot frees, then runs fn with an isolated page
// context bounded by NavTimeout. The slot and tab are reclaimed whether
// fn returns, errors, or panics.
func (p *Pool) WithPage(ctx context.Context, fn func(pageCtx context.Context) error) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	tab, cancelTab := p.newTab(ctx)
	defer cancelTab()
	pageCtx, cancel := context.WithTimeout(tab, p.cfg.NavTimeout)
	defer cancel()

	return fn(pageCtx)
}

// InUse reports how many page slots are currently held.
func (p *Pool) InUse() int {
	return len(p.slots)
}

// MaxPages reports the pool's concurrency cap.
func (p *Pool) MaxPages() int {
	return p.cfg.MaxPages
}

// NavTimeout reports the per-task bound, for callers sizing their waits.
func (p *Pool) NavTimeout() time.Duration {
	return p.cfg.NavTimeout
}

// Close tears down the shared browser context and allocator.
func (p *Pool) Close() {
	if p.cancelBrowse != nil {
		p.cancelBrowse()
	}
	if p.cancelAlloc != nil {
		p.cancelAlloc()
	}
}
