package trends

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"trendwatch-backend/lib/scrapers/copilot"
)

// RegisterRoutes mounts the dashboard API onto mux.
func RegisterRoutes(mux *http.ServeMux, svc *Service) {
	mux.HandleFunc("GET /api/v2/products", svc.handleGetProducts)
	mux.HandleFunc("GET /api/v2/products/saved", svc.handleSavedProducts)
	mux.HandleFunc("GET /api/v2/products/{id}/image", svc.handleProductImage)
	mux.HandleFunc("GET /api/v2/session", svc.handleSessionInfo)
	mux.HandleFunc("POST /api/v2/reauth", svc.handleReauth)
	mux.HandleFunc("GET /health", handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, errType string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Type: errType})
}

func statusForError(err error) (int, string) {
	var authErr *copilot.AuthError
	var upstreamErr *copilot.UpstreamError
	var parseErr *copilot.ParseError
	var transportErr *copilot.TransportError
	switch {
	case errors.As(err, &authErr):
		return http.StatusServiceUnavailable, "auth"
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, "upstream"
	case errors.As(err, &parseErr):
		return http.StatusBadGateway, "parse"
	case errors.As(err, &transportErr):
		return http.StatusGatewayTimeout, "transport"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Service) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := copilot.FetchRequest{
		Timeframe: copilot.Timeframe(q.Get("timeframe")),
		SortBy:    copilot.SortKey(q.Get("sortBy")),
		Limit:     intParam(r, "limit", 0),
		Page:      intParam(r, "page", 0),
		Region:    q.Get("region"),
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}

	page, err := s.GetProducts(r.Context(), req)
	if err != nil {
		status, errType := statusForError(err)
		slog.ErrorContext(r.Context(), "products request failed", "type", errType, "err", err)
		writeError(w, status, errType, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Service) handleSavedProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.SavedProducts(
		r.Context(),
		int64(intParam(r, "min_influencers", 0)),
		int64(intParam(r, "max_influencers", 0)),
		int64(intParam(r, "limit", 0)),
	)
	if err != nil {
		status, errType := statusForError(err)
		writeError(w, status, errType, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Service) handleProductImage(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := s.ProductImage(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoImage) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		status, errType := statusForError(err)
		writeError(w, status, errType, err)
		return
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Service) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.SessionInfo())
}

func (s *Service) handleReauth(w http.ResponseWriter, r *http.Request) {
	info, err := s.Reauth(r.Context())
	if err != nil {
		status, errType := statusForError(err)
		slog.ErrorContext(r.Context(), "forced reauth failed", "type", errType, "err", err)
		writeError(w, status, errType, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
