package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Timeframe string

const (
	Timeframe24Hours Timeframe = "24_hours"
	Timeframe7Days   Timeframe = "7_days"
	Timeframe30Days  Timeframe = "30_days"
)

type SortKey string

const (
	SortByGMV         SortKey = "gmv"
	SortByUnitsSold   SortKey = "units_sold"
	SortByCommission  SortKey = "commission_rate"
	SortByInfluencers SortKey = "influencer_count"
)

// short forms accepted on the API surface, resolved to the upstream values
var timeframeAliases = map[Timeframe]Timeframe{
	"24h": Timeframe24Hours,
	"7d":  Timeframe7Days,
	"30d": Timeframe30Days,
}

// "views" has no upstream equivalent, creator count is the closest proxy
var sortAliases = map[SortKey]SortKey{
	"revenue": SortByGMV,
	"units":   SortByUnitsSold,
	"views":   SortByInfluencers,
}

// FetchRequest selects which trending products slice to pull from upstream.
type FetchRequest struct {
	Timeframe Timeframe
	SortBy    SortKey
	Limit     int
	Page      int
	Region    string
}

func (r FetchRequest) withDefaults() FetchRequest {
	if canonical, ok := timeframeAliases[r.Timeframe]; ok {
		r.Timeframe = canonical
	}
	if canonical, ok := sortAliases[r.SortBy]; ok {
		r.SortBy = canonical
	}
	if r.Timeframe == "" {
		r.Timeframe = Timeframe7Days
	}
	if r.SortBy == "" {
		r.SortBy = SortByGMV
	}
	if r.Limit <= 0 {
		r.Limit = 20
	}
	if r.Limit > 100 {
		r.Limit = 100
	}
	if r.Page < 0 {
		r.Page = 0
	}
	if r.Region == "" {
		r.Region = "US"
	}
	return r
}

// Normalized returns the request with defaults filled in, the same way a
// fetch would interpret it. Useful for building cache keys.
func (r FetchRequest) Normalized() FetchRequest {
	return r.withDefaults()
}

func (r FetchRequest) Validate() error {
	r = r.withDefaults()
	switch r.Timeframe {
	case Timeframe24Hours, Timeframe7Days, Timeframe30Days:
	default:
		return fmt.Errorf("unknown timeframe %q", r.Timeframe)
	}
	switch r.SortBy {
	case SortByGMV, SortByUnitsSold, SortByCommission, SortByInfluencers:
	default:
		return fmt.Errorf("unknown sort key %q", r.SortBy)
	}
	return nil
}

// Product is a normalized trending product. Missing upstream numerics come
// through as zero rather than an error.
type Product struct {
	Id                string  `json:"id"`
	Name              string  `json:"name"`
	GMV               float64 `json:"gmv"`
	UnitsSold         int64   `json:"units_sold"`
	CommissionRate    float64 `json:"commission_rate"`
	InfluencerCount   int64   `json:"influencer_count"`
	Price             float64 `json:"price"`
	PotentialEarnings float64 `json:"potential_earnings"`
	ImageUrl          string  `json:"image_url"`
	Region            string  `json:"region"`
}

type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

type FetchResult struct {
	Products   []Product
	Pagination Pagination
	FetchedAt  time.Time
}

// Extractor pulls product data out of the upstream API through the
// authenticated browser context owned by the session manager.
type Extractor struct {
	sessions *SessionManager
	baseUrl  string
}

func NewExtractor(sessions *SessionManager) *Extractor {
	return &Extractor{sessions: sessions, baseUrl: sessions.opts.BaseUrl}
}

// fetchScript runs inside the page so the request carries the page's own
// session cookies. Failures are reported through the return value because a
// thrown error would lose the distinction between network and HTTP failure.
const fetchScript = `async (url) => {
	try {
		const resp = await fetch(url, { credentials: 'include' });
		const body = await resp.text();
		return { status: resp.status, ok: resp.ok, url: resp.url, body };
	} catch (err) {
		return { error: err.message };
	}
}`

type evalResult struct {
	Status int    `json:"status"`
	Ok     bool   `json:"ok"`
	URL    string `json:"url"`
	Body   string `json:"body"`
	Error  string `json:"error"`
}

// FetchProducts executes one fetch against the upstream API. An expired
// session detected mid-fetch is resolved with a single forced re-auth and
// retry before surfacing as an AuthError.
func (e *Extractor) FetchProducts(ctx context.Context, req FetchRequest) (FetchResult, error) {
	ctx, span := tracer.Start(ctx, "extractor:FetchProducts")
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return FetchResult{}, err
	}
	req = req.withDefaults()
	span.SetAttributes(
		attribute.String("timeframe", string(req.Timeframe)),
		attribute.Int("page", req.Page),
	)

	if err := e.sessions.EnsureAuthenticated(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return FetchResult{}, err
	}

	res, err := e.fetchWithRetry(ctx, req)
	if errors.Is(err, errSessionExpired) {
		slog.WarnContext(ctx, "session rejected mid-fetch, forcing reauth")
		if reauthErr := e.sessions.ForceReauth(ctx); reauthErr != nil {
			span.RecordError(reauthErr)
			span.SetStatus(codes.Error, "reauth failed")
			return FetchResult{}, reauthErr
		}
		res, err = e.fetchWithRetry(ctx, req)
		if errors.Is(err, errSessionExpired) {
			err = &AuthError{Reason: "session rejected after re-authentication"}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return FetchResult{}, err
	}
	return res, nil
}

// fetchWithRetry retries transport failures exactly once with a short
// backoff. Every other error class is surfaced immediately.
func (e *Extractor) fetchWithRetry(ctx context.Context, req FetchRequest) (FetchResult, error) {
	var res FetchResult
	op := func() error {
		var err error
		res, err = e.fetchOnce(ctx, req)
		if err == nil {
			return nil
		}
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			return err
		}
		return backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, 1), ctx))
	return res, err
}

func (e *Extractor) apiURL(req FetchRequest) string {
	query := url.Values{}
	query.Set("timeframe", string(req.Timeframe))
	query.Set("sortBy", string(req.SortBy))
	query.Set("limit", strconv.Itoa(req.Limit))
	query.Set("page", strconv.Itoa(req.Page))
	query.Set("region", req.Region)
	return e.baseUrl + "/api/trending/products?" + query.Encode()
}

func (e *Extractor) fetchOnce(ctx context.Context, req FetchRequest) (FetchResult, error) {
	ctx, span := tracer.Start(ctx, "extractor:fetchOnce")
	defer span.End()

	var raw evalResult
	err := e.sessions.withPage(ctx, func(page Page) error {
		out, err := page.Evaluate(ctx, fetchScript, e.apiURL(req))
		if err != nil {
			return &TransportError{Err: err}
		}
		return decodeEvalResult(out, &raw)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page evaluation failed")
		return FetchResult{}, err
	}

	if raw.Error != "" {
		err := &TransportError{Err: errors.New(raw.Error)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "in-page fetch failed")
		return FetchResult{}, err
	}
	// a rejected session either bounces the request back to the sign-in
	// page or answers with an auth status
	if strings.Contains(raw.URL, signInURLMarker) || raw.Status == 401 || raw.Status == 403 {
		return FetchResult{}, errSessionExpired
	}
	if raw.Status < 200 || raw.Status > 299 {
		err := &UpstreamError{Status: raw.Status}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected upstream status")
		return FetchResult{}, err
	}

	res, err := parseUpstreamBody(ctx, raw.Body, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse upstream body")
		return FetchResult{}, err
	}
	span.SetAttributes(attribute.Int("products", len(res.Products)))
	return res, nil
}

// decodeEvalResult reshapes the loosely-typed evaluation return value into
// evalResult. Browser bindings hand back map[string]any.
func decodeEvalResult(out any, raw *evalResult) error {
	buf, err := json.Marshal(out)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("unexpected evaluation result: %w", err)}
	}
	if err := json.Unmarshal(buf, raw); err != nil {
		return &TransportError{Err: fmt.Errorf("unexpected evaluation result: %w", err)}
	}
	return nil
}

type upstreamBody struct {
	Products []map[string]any `json:"products"`
	Data     []map[string]any `json:"data"`
	Items    []map[string]any `json:"items"`

	Pagination *struct {
		Page    *int   `json:"page"`
		Limit   *int   `json:"limit"`
		Total   *int64 `json:"total"`
		Pages   *int   `json:"pages"`
		HasNext *bool  `json:"has_next"`
		HasPrev *bool  `json:"has_prev"`
	} `json:"pagination"`
	Total *int64 `json:"total"`
}

func parseUpstreamBody(ctx context.Context, body string, req FetchRequest) (FetchResult, error) {
	var decoded upstreamBody
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		// a bounced request can also answer 200 with the login page html
		if isLoginPage(body) {
			return FetchResult{}, errSessionExpired
		}
		parseErr := &ParseError{Err: err, Snippet: snippet(body)}
		slog.ErrorContext(ctx, "undecodable upstream body",
			"err", err,
			"snippet", parseErr.Snippet,
			"trace_id", trace.SpanContextFromContext(ctx).TraceID().String(),
		)
		return FetchResult{}, parseErr
	}

	rows := decoded.Products
	if rows == nil {
		rows = decoded.Data
	}
	if rows == nil {
		rows = decoded.Items
	}

	seen := make(map[string]bool, len(rows))
	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		p := normalizeProduct(row, req.Region)
		if p.Id == "" || seen[p.Id] {
			continue
		}
		seen[p.Id] = true
		products = append(products, p)
	}

	return FetchResult{
		Products:   products,
		Pagination: buildPagination(decoded, req, len(products)),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func isLoginPage(body string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(`input[name="identifier"], input[name="password"]`).Length() > 0
}

func normalizeProduct(row map[string]any, region string) Product {
	p := Product{
		Id:              pickString(row, "id", "product_id"),
		Name:            pickString(row, "name", "product_name", "title"),
		GMV:             pickFloat(row, "gmv", "revenue"),
		UnitsSold:       pickInt(row, "units_sold", "unitsSold", "sold_cnt", "sales"),
		CommissionRate:  pickFloat(row, "commission_rate", "commissionRate", "commission"),
		InfluencerCount: pickInt(row, "influencer_count", "influencers", "author_cnt", "creator_count", "total_ifl_cnt"),
		Price:           pickFloat(row, "price"),
		ImageUrl:        pickString(row, "image_url", "imageUrl", "image", "cover"),
		Region:          pickString(row, "region"),
	}
	if p.Region == "" {
		p.Region = region
	}
	p.PotentialEarnings = pickFloat(row, "potential_earnings", "potentialEarnings")
	if p.PotentialEarnings == 0 {
		p.PotentialEarnings = p.GMV * p.CommissionRate / 100
	}
	return p
}

func pickString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := row[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func pickFloat(row map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := row[key].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(v, "$%")), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func pickInt(row map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := row[key].(type) {
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

func buildPagination(decoded upstreamBody, req FetchRequest, count int) Pagination {
	pg := Pagination{
		Page:    req.Page,
		Limit:   req.Limit,
		Total:   int64(count),
		HasNext: count == req.Limit,
		HasPrev: req.Page > 0,
	}
	if decoded.Total != nil {
		pg.Total = *decoded.Total
	}
	up := decoded.Pagination
	if up != nil {
		if up.Page != nil {
			pg.Page = *up.Page
		}
		if up.Limit != nil {
			pg.Limit = *up.Limit
		}
		if up.Total != nil {
			pg.Total = *up.Total
		}
		if up.HasNext != nil {
			pg.HasNext = *up.HasNext
		}
		if up.HasPrev != nil {
			pg.HasPrev = *up.HasPrev
		}
	}
	if pg.Limit > 0 {
		pg.Pages = int((pg.Total + int64(pg.Limit) - 1) / int64(pg.Limit))
	}
	if up != nil && up.Pages != nil {
		pg.Pages = *up.Pages
	}
	return pg
}
