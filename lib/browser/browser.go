// Package browser wraps playwright-go behind the page interface the
// scrapers drive, so scraper logic stays testable without a real browser.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"trendwatch-backend/lib/scrapers/copilot"

	"github.com/playwright-community/playwright-go"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// launch flags for running chromium inside containers
var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
}

type Options struct {
	Headless  bool
	UserAgent string
	// StepTimeout bounds individual page operations. Defaults to 30s.
	StepTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = time.Second * 30
	}
	return o
}

// Runtime owns the playwright process and the launched chromium instance.
type Runtime struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
}

// Start installs the chromium driver if necessary, then launches it. Call
// Close to release the browser process.
func Start(opts Options) (*Runtime, error) {
	opts = opts.withDefaults()

	err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	if err != nil {
		return nil, fmt.Errorf("install driver: %w", err)
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start driver: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     launchArgs,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	slog.Info("chromium launched", "headless", opts.Headless)
	return &Runtime{pw: pw, browser: browser, opts: opts}, nil
}

// NewPage opens a page in a fresh browser context so it starts with an
// empty cookie jar.
func (r *Runtime) NewPage(ctx context.Context) (copilot.Page, error) {
	browserCtx, err := r.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(r.opts.UserAgent),
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &pwPage{page: page, ctx: browserCtx, timeout: r.opts.StepTimeout}, nil
}

func (r *Runtime) Close() error {
	err := r.browser.Close()
	if stopErr := r.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}

// pwPage adapts a playwright page. Playwright operations carry their own
// timeouts instead of honoring ctx, so the ctx parameters go unused here.
type pwPage struct {
	page    playwright.Page
	ctx     playwright.BrowserContext
	timeout time.Duration
}

func (p *pwPage) timeoutMs() *float64 {
	return playwright.Float(float64(p.timeout.Milliseconds()))
}

func (p *pwPage) Goto(_ context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   p.timeoutMs(),
	})
	return err
}

func (p *pwPage) Fill(_ context.Context, selector, value string) error {
	return p.page.Fill(selector, value, playwright.PageFillOptions{Timeout: p.timeoutMs()})
}

func (p *pwPage) Click(_ context.Context, selector string) error {
	return p.page.Click(selector, playwright.PageClickOptions{Timeout: p.timeoutMs()})
}

func (p *pwPage) IsVisible(_ context.Context, selector string) (bool, error) {
	return p.page.IsVisible(selector)
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Content(_ context.Context) (string, error) {
	return p.page.Content()
}

func (p *pwPage) Evaluate(_ context.Context, js string, args ...any) (any, error) {
	return p.page.Evaluate(js, args...)
}

func (p *pwPage) Cookies(_ context.Context) ([]copilot.Cookie, error) {
	raw, err := p.ctx.Cookies()
	if err != nil {
		return nil, err
	}
	cookies := make([]copilot.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, copilot.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Expires: cookieExpiry(c.Expires),
			Secure:  c.Secure,
		})
	}
	return cookies, nil
}

// session cookies carry -1 for expiry, which is a sentinel rather than a
// timestamp
func cookieExpiry(expires float64) time.Time {
	if expires <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(expires), 0).UTC()
}

func (p *pwPage) Close() error {
	err := p.page.Close()
	if ctxErr := p.ctx.Close(); err == nil {
		err = ctxErr
	}
	return err
}
