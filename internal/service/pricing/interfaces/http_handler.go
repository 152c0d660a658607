package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricewise/internal/pkg/httpclient"
	"pricewise/internal/pkg/logger"
	"pricewise/internal/service/pricing/application"
	"pricewise/internal/service/pricing/domain"
)

const maxBodyBytes = 4 << 20

var errBadJSON = errors.New("malformed request body")

// PricingHandler 封装了定价服务的 HTTP 处理器
type PricingHandler struct {
	service *application.PricingService
	hub     *Hub
}

// NewPricingHandler 创建一个新的 HTTP 处理器实例，hub 为 nil 时不注册 WebSocket 路由
func NewPricingHandler(service *application.PricingService, hub *Hub) *PricingHandler {
	return &PricingHandler{service: service, hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PricingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /calculate_price", h.handleCalculate)
	mux.HandleFunc("POST /recommendations", h.handleRecommend)
	mux.HandleFunc("GET /recommendations", h.handleListRecommendations)
	mux.HandleFunc("POST /recommendations/{id}/apply", h.handleApplyRecommendation)
	mux.HandleFunc("POST /bulk_adjust", h.handleBulkAdjust)
	mux.HandleFunc("POST /sync_prices", h.handleSyncPrices)
	mux.HandleFunc("GET /rules", h.handleListRules)
	mux.HandleFunc("POST /rules", h.handleSaveRule)
	mux.HandleFunc("DELETE /rules/{id}", h.handleDeleteRule)
	mux.HandleFunc("PUT /market/{productId}", h.handlePutMarket)
	mux.HandleFunc("GET /market/{productId}", h.handleGetMarket)
	if h.hub != nil {
		mux.HandleFunc("GET /ws/recommendations", h.hub.ServeWs)
	}
}

func (h *PricingHandler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req application.CalculateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.Calculate(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PricingHandler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req application.CalculateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.Recommend(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *PricingHandler) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListRecommendations(r.Context(), r.URL.Query().Get("product_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []domain.PricingRecommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *PricingHandler) handleApplyRecommendation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VariantID string `json:"variantId"`
	}
	if r.ContentLength != 0 && !decode(w, r, &body) {
		return
	}
	res, err := h.service.ApplyRecommendation(r.Context(), r.PathValue("id"), body.VariantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBulkAdjust 在 ?async=true 时只投递命令，由 price-sync-worker 执行
func (h *PricingHandler) handleBulkAdjust(w http.ResponseWriter, r *http.Request) {
	var req application.BulkAdjustRequest
	if !decode(w, r, &req) {
		return
	}
	if r.URL.Query().Get("async") == "true" {
		event, err := h.service.EnqueueBulkAdjust(r.Context(), &req, r.Header.Get("X-Requested-By"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, event)
		return
	}
	res, err := h.service.BulkAdjust(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PricingHandler) handleSyncPrices(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Updates []application.PriceUpdate `json:"updates"`
	}
	if !decode(w, r, &body) {
		return
	}
	res, err := h.service.SyncPrices(r.Context(), body.Updates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// 部分失败仍然返回 200，由调用方检查 success
	writeJSON(w, http.StatusOK, res)
}

func (h *PricingHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []domain.PricingRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *PricingHandler) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.PricingRule
	if !decode(w, r, &rule) {
		return
	}
	saved, err := h.service.SaveRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *PricingHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PricingHandler) handlePutMarket(w http.ResponseWriter, r *http.Request) {
	var data domain.MarketData
	if !decode(w, r, &data) {
		return
	}
	data.ProductID = r.PathValue("productId")
	if err := h.service.PutMarketData(r.Context(), &data); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *PricingHandler) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.GetMarketData(r.Context(), r.PathValue("productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, errors.Wrap(errBadJSON, err.Error()))
		return false
	}
	return true
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	var statusErr *httpclient.StatusError
	switch {
	case errors.Is(err, errBadJSON),
		errors.Is(err, application.ErrInvalidRequest),
		domain.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRuleNotFound),
		errors.Is(err, domain.ErrRecommendationNotFound),
		errors.Is(err, application.ErrMarketDataNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrCatalogUpdate),
		errors.As(err, &statusErr):
		return http.StatusBadGateway
	case errors.Is(err, application.ErrNotConfigured),
		errors.Is(err, application.ErrSyncDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
