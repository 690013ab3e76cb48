package copilot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"trendwatch-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// State is the authentication state of the scraping session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
)

// Credentials is the login pair for the upstream dashboard. Values are
// secrets: they are submitted into the login form and nothing else.
type Credentials struct {
	Email    string
	Password string
}

type Options struct {
	// BaseUrl of the upstream dashboard, e.g. https://www.tiktokcopilot.com
	BaseUrl string
	// LoginPath is appended to BaseUrl to reach the sign-in form.
	LoginPath string
	// MaxSessionAge is how old an authenticated session may get before the
	// next EnsureAuthenticated re-runs the login. Defaults to 1 hour.
	MaxSessionAge time.Duration
	// StepTimeout bounds each individual login step. Defaults to 30s.
	StepTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseUrl == "" {
		o.BaseUrl = "https://www.tiktokcopilot.com"
	}
	if o.LoginPath == "" {
		o.LoginPath = "/?auth=sign-in"
	}
	if o.MaxSessionAge <= 0 {
		o.MaxSessionAge = time.Hour
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = time.Second * 30
	}
	return o
}

// Driver launches fresh browser pages. *browser.Runtime is the production
// implementation.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is the subset of browser page operations the session manager drives.
// All methods honor ctx cancellation and time out internally.
type Page interface {
	Goto(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	IsVisible(ctx context.Context, selector string) (bool, error)
	URL() string
	Content(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, js string, args ...any) (any, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	Close() error
}

type Cookie struct {
	Name    string
	Value   string
	Expires time.Time
	Secure  bool
}

// CookieInfo is the non-sensitive projection of a Cookie exposed through
// SessionInfo. It never carries the value.
type CookieInfo struct {
	Name    string    `json:"name"`
	Expires time.Time `json:"expires"`
}

type SessionInfo struct {
	State           State        `json:"state"`
	AuthenticatedAt *time.Time   `json:"authenticated_at"`
	AgeSeconds      int64        `json:"age_seconds"`
	Cookies         []CookieInfo `json:"cookies"`
}

var loginCounter, _ = meter.Int64Counter(
	"copilot_login_total",
	metric.WithDescription("The total amount of login sequences executed."),
)

// SessionManager owns the single authenticated browser page shared by all
// requests in the process. The raw page never leaves the manager.
type SessionManager struct {
	driver Driver
	creds  Credentials
	opts   Options

	// mu guards the authentication state below; it is never held across a
	// login sequence, the inflight channel covers that window instead.
	mu              sync.Mutex
	state           State
	authenticatedAt time.Time
	lastActivity    time.Time
	cookies         []CookieInfo
	inflight        chan struct{}
	loginErr        error

	// pageMu serializes all use of the shared page, including its
	// replacement during login. Distinct from mu so session_info stays
	// responsive while a fetch or login is running.
	pageMu sync.Mutex
	page   Page
}

func NewSessionManager(driver Driver, creds Credentials, opts Options) *SessionManager {
	return &SessionManager{
		driver: driver,
		creds:  creds,
		opts:   opts.withDefaults(),
		state:  StateUnauthenticated,
	}
}

// EnsureAuthenticated returns once the session is authenticated and younger
// than MaxSessionAge. Concurrent callers during an in-flight login wait for
// the holder and receive its result; exactly one login sequence executes.
func (m *SessionManager) EnsureAuthenticated(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateAuthenticated && timezone.Now().Sub(m.authenticatedAt) < m.opts.MaxSessionAge {
		m.lastActivity = timezone.Now()
		m.mu.Unlock()
		return nil
	}
	if m.inflight != nil {
		ch := m.inflight
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		err := m.loginErr
		m.mu.Unlock()
		return err
	}

	ch := make(chan struct{})
	m.inflight = ch
	m.state = StateAuthenticating
	m.mu.Unlock()

	err := m.login(ctx)

	m.mu.Lock()
	m.loginErr = err
	if err != nil {
		m.state = StateExpired
	} else {
		now := timezone.Now()
		m.state = StateAuthenticated
		m.authenticatedAt = now
		m.lastActivity = now
	}
	m.inflight = nil
	close(ch)
	m.mu.Unlock()
	return err
}

// ForceReauth invalidates the current session and re-runs the login. When a
// login is already in flight it joins that attempt instead of stacking a
// second one.
func (m *SessionManager) ForceReauth(ctx context.Context) error {
	m.mu.Lock()
	if m.inflight != nil {
		ch := m.inflight
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		err := m.loginErr
		m.mu.Unlock()
		return err
	}
	m.state = StateExpired
	m.mu.Unlock()

	return m.EnsureAuthenticated(ctx)
}

// SessionInfo reports diagnostics about the current session. Cookie values
// are never included.
func (m *SessionManager) SessionInfo() SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := SessionInfo{
		State:   m.state,
		Cookies: append([]CookieInfo(nil), m.cookies...),
	}
	if !m.authenticatedAt.IsZero() {
		at := m.authenticatedAt
		info.AuthenticatedAt = &at
		info.AgeSeconds = int64(timezone.Now().Sub(at).Seconds())
	}
	return info
}

// StartRefreshDaemon re-authenticates on a fixed interval as a safety net
// against silent upstream session invalidation. A tick that lands while a
// login is already in flight is skipped.
func (m *SessionManager) StartRefreshDaemon(ctx context.Context) {
	go m.refreshDaemon(ctx)
}

func (m *SessionManager) refreshDaemon(ctx context.Context) {
	slog.InfoContext(ctx, "start daemon", "task", "session refresh", "interval", m.opts.MaxSessionAge)

	ticker := time.NewTicker(m.opts.MaxSessionAge)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			busy := m.inflight != nil
			m.mu.Unlock()
			if busy {
				slog.DebugContext(ctx, "skipping scheduled reauth, login already in flight")
				continue
			}
			if err := m.ForceReauth(ctx); err != nil {
				slog.WarnContext(ctx, "scheduled reauth failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the owned page. The manager is unusable afterwards.
func (m *SessionManager) Close() error {
	m.pageMu.Lock()
	defer m.pageMu.Unlock()
	if m.page == nil {
		return nil
	}
	err := m.page.Close()
	m.page = nil
	return err
}

// withPage runs fn while holding the page-access lock. Fetches serialize
// here because a single browser page cannot service concurrent evaluations.
func (m *SessionManager) withPage(ctx context.Context, fn func(Page) error) error {
	m.pageMu.Lock()
	defer m.pageMu.Unlock()

	if m.page == nil {
		return &AuthError{Reason: "no authenticated page"}
	}

	m.mu.Lock()
	m.lastActivity = timezone.Now()
	m.mu.Unlock()

	return fn(m.page)
}

const (
	selectorSignInTrigger = `text=Sign in`
	selectorIdentifier    = `input[name="identifier"], input[type="email"], input[autocomplete="email"]`
	selectorContinue      = `button:has-text("Continue")`
	selectorPassword      = `input[name="password"], input[type="password"]`
	selectorSubmit        = `button:has-text("Sign In"), button:has-text("Sign in"), button[type="submit"]`
	signInURLMarker       = "auth=sign-in"
	sessionCookiePrefix   = "__session"
)

func (m *SessionManager) login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:login")
	defer span.End()

	m.pageMu.Lock()
	defer m.pageMu.Unlock()

	if m.page != nil {
		// stale cookies on the old page would mask a failed relogin
		if err := m.page.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close stale page", "err", err)
		}
		m.page = nil
		m.mu.Lock()
		m.cookies = nil
		m.mu.Unlock()
	}

	page, err := m.driver.NewPage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open page")
		return &AuthError{Reason: "browser page unavailable", Err: err}
	}

	err = m.runLoginSequence(ctx, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login sequence failed")
		page.Close()
		return err
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cookies")
		page.Close()
		return &AuthError{Reason: "failed to read session cookies", Err: err}
	}

	var infos []CookieInfo
	found := false
	for _, c := range cookies {
		infos = append(infos, CookieInfo{Name: c.Name, Expires: c.Expires})
		if strings.HasPrefix(c.Name, sessionCookiePrefix) {
			found = true
		}
	}
	if !found {
		span.SetStatus(codes.Error, "no session cookie after login")
		page.Close()
		return &AuthError{Reason: "login completed but no session cookie found"}
	}

	m.page = page
	m.mu.Lock()
	m.cookies = infos
	m.mu.Unlock()

	loginCounter.Add(ctx, 1)
	slog.InfoContext(ctx, "login sequence completed", "cookies", len(infos))
	return nil
}

func (m *SessionManager) runLoginSequence(ctx context.Context, page Page) error {
	loginURL := m.opts.BaseUrl + m.opts.LoginPath
	if err := page.Goto(ctx, loginURL); err != nil {
		return &AuthError{Reason: "login form unreachable", Err: err}
	}

	// the sign-in form usually auto-opens from the query param, but some
	// deploys render a landing page with a trigger instead
	if visible, _ := page.IsVisible(ctx, selectorSignInTrigger); visible {
		_ = page.Click(ctx, selectorSignInTrigger)
	}

	if err := page.Fill(ctx, selectorIdentifier, m.creds.Email); err != nil {
		return &AuthError{Reason: "identifier field not found", Err: err}
	}
	// two-step flow: the Continue button only exists when the identity
	// provider asks for the email first
	if visible, _ := page.IsVisible(ctx, selectorContinue); visible {
		_ = page.Click(ctx, selectorContinue)
	}
	if err := page.Fill(ctx, selectorPassword, m.creds.Password); err != nil {
		return &AuthError{Reason: "password field not found", Err: err}
	}
	if err := page.Click(ctx, selectorSubmit); err != nil {
		return &AuthError{Reason: "submit button not found", Err: err}
	}

	if err := m.waitForAuthRedirect(ctx, page); err != nil {
		if reason := loginFailureBanner(ctx, page); reason != "" {
			return &AuthError{Reason: reason}
		}
		return err
	}
	return nil
}

// waitForAuthRedirect polls until the page leaves the sign-in URL.
func (m *SessionManager) waitForAuthRedirect(ctx context.Context, page Page) error {
	deadline := time.Now().Add(m.opts.StepTimeout)
	for {
		if !strings.Contains(page.URL(), signInURLMarker) {
			return nil
		}
		if time.Now().After(deadline) {
			return &AuthError{Reason: "timed out waiting for login redirect"}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond * 250):
		}
	}
}

// loginFailureBanner scrapes the stuck sign-in page for a form error so
// rejected credentials surface as such instead of a generic timeout.
func loginFailureBanner(ctx context.Context, page Page) string {
	html, err := page.Content(ctx)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	banner := strings.TrimSpace(doc.Find(".cl-formFieldErrorText, [data-error], .cl-internal-error").First().Text())
	if banner == "" {
		return ""
	}
	return "credentials rejected: " + banner
}
