package trends

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"trendwatch-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, driver *stubDriver) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, newTestService(t, driver))
	return mux
}

func doRequest(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	rec := doRequest(newTestHandler(t, &stubDriver{}), "GET", "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProductsEndpoint(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	driver := &stubDriver{evalFn: okProductsEval(`{"products":[{"id":"p1","name":"LED Strip","gmv":5000,"commission_rate":10,"author_cnt":2}]}`)}
	handler := newTestHandler(t, driver)

	rec := doRequest(handler, "GET", "/api/v2/products?timeframe=7_days&sortBy=gmv&limit=20&page=0&region=US")
	require.Equal(t, http.StatusOK, rec.Code)

	var page ProductsPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.True(t, page.Success)
	require.Len(t, page.Products, 1)
	require.Equal(t, "p1", page.Products[0].Id)
	require.Equal(t, float64(500), page.Products[0].PotentialEarnings)
	require.NotEmpty(t, page.Products[0].Analysis.Summary)
	require.False(t, page.Products[0].FirstSeen.IsZero())
	require.Equal(t, 20, page.Pagination.Limit)
	require.False(t, page.Pagination.HasPrev)

	// alias forms resolve to the same canonical request, so this is a
	// cache hit rather than a second fetch
	rec = doRequest(handler, "GET", "/api/v2/products?timeframe=7d&sortBy=revenue")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.True(t, page.Cached)
}

func TestProductsEndpointValidation(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	handler := newTestHandler(t, &stubDriver{})

	rec := doRequest(handler, "GET", "/api/v2/products?timeframe=90_days")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "validation", resp.Type)

	rec = doRequest(handler, "GET", "/api/v2/products?sortBy=popularity")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductsEndpointAuthFailure(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	driver := &stubDriver{failErr: errors.New("chromium crashed")}
	handler := newTestHandler(t, driver)

	rec := doRequest(handler, "GET", "/api/v2/products")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "auth", resp.Type)
	// credentials never leak into error payloads
	require.NotContains(t, rec.Body.String(), "hunter2")
}

func TestSessionEndpoint(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	handler := newTestHandler(t, &stubDriver{})

	rec := doRequest(handler, "GET", "/api/v2/session")
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		State   string `json:"state"`
		Cookies []any  `json:"cookies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "unauthenticated", info.State)
	require.Empty(t, info.Cookies)
}

func TestReauthEndpoint(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	handler := newTestHandler(t, &stubDriver{})

	rec := doRequest(handler, "POST", "/api/v2/reauth")
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "authenticated", info.State)
	require.NotContains(t, rec.Body.String(), "stub")
}

func TestReauthEndpointFailure(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	driver := &stubDriver{failErr: errors.New("chromium crashed")}
	handler := newTestHandler(t, driver)

	rec := doRequest(handler, "POST", "/api/v2/reauth")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProductImageEndpointNotFound(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	rec := doRequest(newTestHandler(t, &stubDriver{}), "GET", "/api/v2/products/missing/image")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSavedProductsEndpoint(t *testing.T) {
	defer telemetry.SetupForTesting(t, "services/trends")()

	driver := &stubDriver{evalFn: okProductsEval(`{"products":[{"id":"p1","name":"LED Strip","gmv":5000,"commission_rate":10,"author_cnt":2}]}`)}
	svc := newTestService(t, driver)
	mux := http.NewServeMux()
	RegisterRoutes(mux, svc)

	// fetch once so the store has a row
	rec := doRequest(mux, "GET", "/api/v2/products")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, "GET", "/api/v2/products/saved?min_influencers=0&max_influencers=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Products []SavedProduct `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 1)
	require.Equal(t, "p1", resp.Products[0].Id)
}
