// Package trends serves trending product data scraped from the upstream
// dashboard, enriched with heuristic analysis and persisted for later
// filtering.
package trends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"trendwatch-backend/lib/scrapers/copilot"
	"trendwatch-backend/lib/telemetry"
	"trendwatch-backend/lib/timezone"
	"trendwatch-backend/services/trends/db"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrNotFound = errors.New("product not found")
var ErrNoImage = errors.New("product has no image")

type AnalyzedProduct struct {
	copilot.Product
	FirstSeen time.Time `json:"first_seen"`
	Analysis  Analysis  `json:"analysis"`
}

type ProductsPage struct {
	Success    bool               `json:"success"`
	Products   []AnalyzedProduct  `json:"products"`
	Pagination copilot.Pagination `json:"pagination"`
	FetchedAt  time.Time          `json:"fetched_at"`
	Cached     bool               `json:"cached"`
}

type SavedProduct struct {
	Id                string    `json:"id"`
	Name              string    `json:"name"`
	GMV               float64   `json:"gmv"`
	UnitsSold         int64     `json:"units_sold"`
	CommissionRate    float64   `json:"commission_rate"`
	InfluencerCount   int64     `json:"influencer_count"`
	Price             float64   `json:"price"`
	PotentialEarnings float64   `json:"potential_earnings"`
	ImageUrl          string    `json:"image_url"`
	Region            string    `json:"region"`
	FirstSeen         time.Time `json:"first_seen"`
	LastUpdated       time.Time `json:"last_updated"`
	Analysis          Analysis  `json:"analysis"`
}

type Service struct {
	sessions  *copilot.SessionManager
	extractor *copilot.Extractor
	qry       *db.Queries
	cache     *expirable.LRU[string, ProductsPage]
	images    *resty.Client
}

func NewService(sessions *copilot.SessionManager, sqlDB *sql.DB) *Service {
	client := resty.New().SetTimeout(time.Second * 15)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	telemetry.InstrumentResty(client, "services/trends")

	return &Service{
		sessions:  sessions,
		extractor: copilot.NewExtractor(sessions),
		qry:       db.New(sqlDB),
		cache:     expirable.NewLRU[string, ProductsPage](256, nil, time.Minute*5),
		images:    client,
	}
}

func cacheKey(req copilot.FetchRequest) string {
	return fmt.Sprintf("%s|%s|%d|%d|%s", req.Timeframe, req.SortBy, req.Limit, req.Page, req.Region)
}

// GetProducts returns one page of trending products with analysis attached.
// Results are cached briefly so dashboard refreshes don't hammer the
// browser session, and every fetched product is upserted into the store.
func (s *Service) GetProducts(ctx context.Context, req copilot.FetchRequest) (ProductsPage, error) {
	ctx, span := tracer.Start(ctx, "trends:GetProducts")
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return ProductsPage{}, err
	}
	req = req.Normalized()

	key := cacheKey(req)
	if page, ok := s.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		page.Cached = true
		return page, nil
	}

	res, err := s.extractor.FetchProducts(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return ProductsPage{}, err
	}

	now := timezone.Now()
	products := make([]AnalyzedProduct, 0, len(res.Products))
	for _, p := range res.Products {
		err := s.qry.UpsertProduct(ctx, db.UpsertProductParams{
			ID:                p.Id,
			Name:              p.Name,
			Gmv:               p.GMV,
			UnitsSold:         p.UnitsSold,
			CommissionRate:    p.CommissionRate,
			InfluencerCount:   p.InfluencerCount,
			Price:             p.Price,
			PotentialEarnings: p.PotentialEarnings,
			ImageUrl:          p.ImageUrl,
			Region:            p.Region,
			FirstSeen:         now,
			LastUpdated:       now,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to persist product", "id", p.Id, "err", err)
		}

		// the store keeps the original first-seen across upserts
		firstSeen := now
		if row, err := s.qry.GetProduct(ctx, p.Id); err == nil {
			firstSeen = row.FirstSeen
		}
		products = append(products, AnalyzedProduct{
			Product:   p,
			FirstSeen: firstSeen,
			Analysis:  AnalyzeProduct(p.Name, p.GMV, p.InfluencerCount),
		})
	}

	page := ProductsPage{
		Success:    true,
		Products:   products,
		Pagination: res.Pagination,
		FetchedAt:  res.FetchedAt,
	}
	s.cache.Add(key, page)
	span.SetAttributes(attribute.Int("products", len(products)))
	return page, nil
}

// SavedProducts lists previously-fetched products from the store filtered
// by how many creators promote them.
func (s *Service) SavedProducts(ctx context.Context, minInfluencers, maxInfluencers, limit int64) ([]SavedProduct, error) {
	ctx, span := tracer.Start(ctx, "trends:SavedProducts")
	defer span.End()

	if maxInfluencers <= 0 {
		maxInfluencers = 1<<63 - 1
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.qry.ListProductsByInfluencerRange(ctx, db.ListProductsByInfluencerRangeParams{
		MinInfluencers: minInfluencers,
		MaxInfluencers: maxInfluencers,
		Limit:          limit,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list products")
		return nil, err
	}

	out := make([]SavedProduct, 0, len(rows))
	for _, row := range rows {
		out = append(out, SavedProduct{
			Id:                row.ID,
			Name:              row.Name,
			GMV:               row.Gmv,
			UnitsSold:         row.UnitsSold,
			CommissionRate:    row.CommissionRate,
			InfluencerCount:   row.InfluencerCount,
			Price:             row.Price,
			PotentialEarnings: row.PotentialEarnings,
			ImageUrl:          row.ImageUrl,
			Region:            row.Region,
			FirstSeen:         row.FirstSeen,
			LastUpdated:       row.LastUpdated,
			Analysis:          AnalyzeProduct(row.Name, row.Gmv, row.InfluencerCount),
		})
	}
	return out, nil
}

// ProductImage proxies a stored product's image so the frontend never hits
// the upstream CDN directly.
func (s *Service) ProductImage(ctx context.Context, id string) ([]byte, string, error) {
	ctx, span := tracer.Start(ctx, "trends:ProductImage")
	defer span.End()

	row, err := s.qry.GetProduct(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load product")
		return nil, "", err
	}
	if row.ImageUrl == "" {
		return nil, "", ErrNoImage
	}

	resp, err := s.images.R().SetContext(ctx).Get(row.ImageUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "image fetch failed")
		return nil, "", &copilot.TransportError{Err: err}
	}
	if resp.StatusCode() != 200 {
		err := &copilot.UpstreamError{Status: resp.StatusCode()}
		span.RecordError(err)
		span.SetStatus(codes.Error, "image fetch failed")
		return nil, "", err
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

func (s *Service) SessionInfo() copilot.SessionInfo {
	return s.sessions.SessionInfo()
}

// Reauth forces a fresh login regardless of session age.
func (s *Service) Reauth(ctx context.Context) (copilot.SessionInfo, error) {
	ctx, span := tracer.Start(ctx, "trends:Reauth")
	defer span.End()

	if err := s.sessions.ForceReauth(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reauth failed")
		return s.sessions.SessionInfo(), err
	}
	return s.sessions.SessionInfo(), nil
}
