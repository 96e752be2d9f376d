package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopizen/catalogsearch/internal/catalog"
	"github.com/shopizen/catalogsearch/internal/domain"
	"github.com/shopizen/catalogsearch/internal/service"
	"github.com/shopizen/catalogsearch/pkg/httputil"
	"github.com/shopizen/catalogsearch/pkg/validator"
)

// SearchHandler handles HTTP requests for catalog search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// IndexRecordRequest is the JSON request body for pushing a record into the
// index directly, bypassing the event stream.
type IndexRecordRequest struct {
	ID            string    `json:"id" validate:"required"`
	Name          string    `json:"name" validate:"required,min=1"`
	Description   string    `json:"description"`
	Price         float64   `json:"price" validate:"gte=0"`
	OriginalPrice float64   `json:"original_price" validate:"gte=0"`
	Stock         int       `json:"stock"`
	Rating        float64   `json:"rating" validate:"gte=0,lte=5"`
	ReviewCount   int       `json:"review_count"`
	ViewCount     int       `json:"view_count"`
	Tags          []string  `json:"tags"`
	CategoryID    string    `json:"category_id"`
	IsActive      bool      `json:"is_active"`
	IsFeatured    bool      `json:"is_featured"`
	CreatedAt     time.Time `json:"created_at"`
}

// searchInfo echoes back the interpreted request so clients can see what the
// engine actually answered.
type searchInfo struct {
	Query      string `json:"query"`
	SortBy     string `json:"sortBy"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	WithFacets bool   `json:"withFacets"`
}

type searchResponse struct {
	*domain.SearchResult
	SearchInfo searchInfo `json:"searchInfo"`
}

// --- Handlers ---

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	withFacets := parseBoolParam(r, "with_facets")

	result, err := h.service.Search(r.Context(), filter, withFacets != nil && *withFacets)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: searchResponse{
		SearchResult: result,
		SearchInfo: searchInfo{
			Query:      filter.Query,
			SortBy:     filter.SortBy,
			Page:       filter.Page,
			Limit:      filter.Limit,
			WithFacets: withFacets != nil && *withFacets,
		},
	}})
}

// Facets handles GET /api/v1/search/facets
func (h *SearchHandler) Facets(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	facets, err := h.service.Facets(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: facets})
}

// Suggest handles GET /api/v1/search/suggest
func (h *SearchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))

	limit := service.DefaultSuggestLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 20 {
			limit = l
		}
	}

	suggestions, err := h.service.Suggest(r.Context(), prefix, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"suggestions": suggestions}})
}

// Similar handles GET /api/v1/search/similar/{id}
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := service.DefaultSimilarLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 50 {
			limit = l
		}
	}

	docs, err := h.service.Similar(r.Context(), id, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"documents": docs}})
}

// Trending handles GET /api/v1/search/trending. An optional days parameter
// narrows the creation window; absent it falls back to the service default.
func (h *SearchHandler) Trending(w http.ResponseWriter, r *http.Request) {
	limit := domain.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= domain.MaxLimit {
			limit = l
		}
	}

	var window time.Duration
	if v := r.URL.Query().Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "days must be a positive integer"},
			})
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}

	docs, err := h.service.Trending(r.Context(), limit, window)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"documents": docs}})
}

// IndexRecord handles POST /api/v1/search/index
func (h *SearchHandler) IndexRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req IndexRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	rec := &catalog.Record{
		ID:            req.ID,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Stock:         req.Stock,
		Rating:        req.Rating,
		ReviewCount:   req.ReviewCount,
		ViewCount:     req.ViewCount,
		Tags:          req.Tags,
		CategoryID:    req.CategoryID,
		IsActive:      req.IsActive,
		IsFeatured:    req.IsFeatured,
		CreatedAt:     req.CreatedAt,
	}

	if err := h.service.IndexRecord(r.Context(), rec); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": req.ID, "status": "indexed"}})
}

// DeleteDocument handles DELETE /api/v1/search/{id}
func (h *SearchHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteDocument(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id, "status": "deleted"}})
}

// SyncRecord handles POST /api/v1/search/reindex/{id}
func (h *SearchHandler) SyncRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.SyncRecord(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id, "status": "synced"}})
}

// Reindex handles POST /api/v1/search/reindex. The rebuild runs in the
// background; the request only kicks it off.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx := context.Background()
		if _, err := h.service.Reindex(ctx); err != nil {
			h.logger.ErrorContext(ctx, "background reindex failed", "error", err)
		}
	}()

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{"status": "reindex started"}})
}

// ReindexCategory handles POST /api/v1/search/reindex/category/{id}
func (h *SearchHandler) ReindexCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.service.ReindexCategory(r.Context(), id)
	if err != nil && result == nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	data := map[string]any{"category_id": id, "indexed": result.Indexed}
	if len(result.FailedIDs) > 0 {
		data["failed_ids"] = result.FailedIDs
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: data})
}

// --- Param parsing ---

// parseFilter builds a FilterRequest from query parameters, rejecting values
// that cannot be parsed. Semantic validation happens in the service.
func (h *SearchHandler) parseFilter(w http.ResponseWriter, r *http.Request) (*domain.FilterRequest, bool) {
	q := r.URL.Query()
	filter := &domain.FilterRequest{
		Query:      strings.TrimSpace(q.Get("q")),
		CategoryID: q.Get("category_id"),
		SortBy:     q.Get("sort"),
	}

	var ok bool
	if filter.PriceMin, ok = parseFloatParam(w, r, "price_min"); !ok {
		return nil, false
	}
	if filter.PriceMax, ok = parseFloatParam(w, r, "price_max"); !ok {
		return nil, false
	}
	if filter.RatingMin, ok = parseFloatParam(w, r, "rating_min"); !ok {
		return nil, false
	}
	if filter.RatingMax, ok = parseFloatParam(w, r, "rating_max"); !ok {
		return nil, false
	}

	filter.OnSale = parseBoolParam(r, "on_sale")
	filter.Featured = parseBoolParam(r, "featured")

	if filter.Page, ok = parsePositiveIntParam(w, r, "page"); !ok {
		return nil, false
	}
	if filter.Limit, ok = parsePositiveIntParam(w, r, "limit"); !ok {
		return nil, false
	}

	return filter, true
}

// parsePositiveIntParam reads an optional positive integer query parameter,
// writing a 400 when the value is present but not a positive integer.
func parsePositiveIntParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: name + " must be a positive integer"},
		})
		return 0, false
	}
	return n, true
}

// parseFloatParam reads an optional float query parameter, writing a 400 when
// the value is present but unparseable.
func parseFloatParam(w http.ResponseWriter, r *http.Request, name string) (*float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: name + " must be a valid number"},
		})
		return nil, false
	}
	return &f, true
}

// parseBoolParam reads an optional tri-state boolean query parameter: absent
// or unparseable means "no constraint".
func parseBoolParam(r *http.Request, name string) *bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
