package trends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"trendwatch-backend/lib/scrapers/copilot"
	"trendwatch-backend/lib/telemetry"
	"trendwatch-backend/lib/util/sqliteutil"
	"trendwatch-backend/services/trends/db"

	"github.com/stretchr/testify/require"
)

// stubPage satisfies the scraper page interface with a canned login flow
// and a pluggable fetch result.
type stubPage struct {
	mu     sync.Mutex
	url    string
	evalFn func() (any, error)
}

func (p *stubPage) Goto(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *stubPage) Fill(ctx context.Context, selector, value string) error { return nil }

func (p *stubPage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.Contains(selector, "submit") {
		p.url = "https://www.tiktokcopilot.com/dashboard"
	}
	return nil
}

func (p *stubPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	return false, nil
}

func (p *stubPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *stubPage) Content(ctx context.Context) (string, error) { return "", nil }

func (p *stubPage) Evaluate(ctx context.Context, js string, args ...any) (any, error) {
	return p.evalFn()
}

func (p *stubPage) Cookies(ctx context.Context) ([]copilot.Cookie, error) {
	return []copilot.Cookie{{Name: "__session", Value: "stub", Expires: time.Now().Add(time.Hour)}}, nil
}

func (p *stubPage) Close() error { return nil }

type stubDriver struct {
	evalFn  func() (any, error)
	failErr error
}

func (d *stubDriver) NewPage(ctx context.Context) (copilot.Page, error) {
	if d.failErr != nil {
		return nil, d.failErr
	}
	return &stubPage{evalFn: d.evalFn}, nil
}

func okProductsEval(body string) func() (any, error) {
	return func() (any, error) {
		return map[string]any{
			"status": 200,
			"ok":     true,
			"url":    "https://www.tiktokcopilot.com/api/trending/products",
			"body":   body,
		}, nil
	}
}

func newTestService(t *testing.T, driver copilot.Driver) *Service {
	t.Helper()
	sqlDB, err := sqliteutil.OpenDB(db.Schema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	sessions := copilot.NewSessionManager(
		driver,
		copilot.Credentials{Email: "tester@example.com", Password: "hunter2"},
		copilot.Options{},
	)
	return NewService(sessions, sqlDB)
}

func TestGetProductsCachesAndAnalyzes(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	evalCalls := 0
	driver := &stubDriver{evalFn: func() (any, error) {
		evalCalls++
		return okProductsEval(`{"products":[
			{"id":"p1","name":"LED Strip","gmv":5000,"commission_rate":10,"author_cnt":2},
			{"id":"p2","name":"Mini Fan","gmv":250000,"commission_rate":5,"author_cnt":40}
		]}`)()
	}}
	svc := newTestService(t, driver)

	page, err := svc.GetProducts(context.Background(), copilot.FetchRequest{})
	require.NoError(t, err)
	require.False(t, page.Cached)
	require.Len(t, page.Products, 2)
	require.Equal(t, 1, evalCalls)

	require.Contains(t, page.Products[0].Analysis.Summary, "hidden gem")
	require.Contains(t, page.Products[1].Analysis.Summary, "viral trend")
	require.Equal(t, float64(500), page.Products[0].PotentialEarnings)

	// an identical request is served from cache
	page, err = svc.GetProducts(context.Background(), copilot.FetchRequest{})
	require.NoError(t, err)
	require.True(t, page.Cached)
	require.Equal(t, 1, evalCalls)

	// a different page misses the cache
	_, err = svc.GetProducts(context.Background(), copilot.FetchRequest{Page: 1})
	require.NoError(t, err)
	require.Equal(t, 2, evalCalls)
}

func TestGetProductsPersistsToStore(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	driver := &stubDriver{evalFn: okProductsEval(`{"products":[{"id":"p1","name":"LED Strip","gmv":5000,"commission_rate":10,"author_cnt":2}]}`)}
	svc := newTestService(t, driver)

	_, err := svc.GetProducts(context.Background(), copilot.FetchRequest{})
	require.NoError(t, err)

	row, err := svc.qry.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "LED Strip", row.Name)
	require.Equal(t, float64(5000), row.Gmv)
	require.False(t, row.FirstSeen.IsZero())
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	sqlDB, err := sqliteutil.OpenDB(db.Schema, ":memory:")
	require.NoError(t, err)
	defer sqlDB.Close()
	qry := db.New(sqlDB)

	firstSeen := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	later := firstSeen.Add(time.Hour * 24)

	require.NoError(t, qry.UpsertProduct(context.Background(), db.UpsertProductParams{
		ID: "p1", Name: "A", Gmv: 100, FirstSeen: firstSeen, LastUpdated: firstSeen,
	}))
	require.NoError(t, qry.UpsertProduct(context.Background(), db.UpsertProductParams{
		ID: "p1", Name: "A renamed", Gmv: 200, FirstSeen: later, LastUpdated: later,
	}))

	row, err := qry.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "A renamed", row.Name)
	require.Equal(t, float64(200), row.Gmv)
	require.True(t, row.FirstSeen.Equal(firstSeen))
	require.True(t, row.LastUpdated.Equal(later))
}

func TestSavedProductsFiltersByInfluencers(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	svc := newTestService(t, &stubDriver{})
	now := time.Now().UTC()
	for _, p := range []db.UpsertProductParams{
		{ID: "p1", Name: "A", Gmv: 5000, InfluencerCount: 2, PotentialEarnings: 500, FirstSeen: now, LastUpdated: now},
		{ID: "p2", Name: "B", Gmv: 9000, InfluencerCount: 10, PotentialEarnings: 900, FirstSeen: now, LastUpdated: now},
		{ID: "p3", Name: "C", Gmv: 100, InfluencerCount: 50, PotentialEarnings: 10, FirstSeen: now, LastUpdated: now},
	} {
		require.NoError(t, svc.qry.UpsertProduct(context.Background(), p))
	}

	out, err := svc.SavedProducts(context.Background(), 0, 20, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// ordered by potential earnings, best first
	require.Equal(t, "p2", out[0].Id)
	require.Equal(t, "p1", out[1].Id)
	require.NotEmpty(t, out[0].Analysis.Summary)

	out, err = svc.SavedProducts(context.Background(), 30, 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "p3", out[0].Id)
}

func TestProductImageProxy(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	}))
	defer upstream.Close()

	svc := newTestService(t, &stubDriver{})
	now := time.Now().UTC()
	require.NoError(t, svc.qry.UpsertProduct(context.Background(), db.UpsertProductParams{
		ID: "p1", Name: "A", ImageUrl: upstream.URL + "/img.png", FirstSeen: now, LastUpdated: now,
	}))
	require.NoError(t, svc.qry.UpsertProduct(context.Background(), db.UpsertProductParams{
		ID: "p2", Name: "B", FirstSeen: now, LastUpdated: now,
	}))

	body, contentType, err := svc.ProductImage(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "image/png", contentType)
	require.Equal(t, []byte("pngbytes"), body)

	_, _, err = svc.ProductImage(context.Background(), "p2")
	require.ErrorIs(t, err, ErrNoImage)

	_, _, err = svc.ProductImage(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
