package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/logger"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"github.com/fjod/go_cart/storefront-service/internal/variant"
	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type CartHandler struct {
	backend session.Backend
	opts    []cart.Option
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(backend session.Backend, timeout time.Duration, log *zap.Logger, opts ...cart.Option) *CartHandler {
	return &CartHandler{
		backend: backend,
		opts:    opts,
		timeout: timeout,
		log:     log,
	}
}

// AddItemRequestDTO adds one unit when quantity is omitted.
type AddItemRequestDTO struct {
	VariantID int64          `json:"variant_id"`
	Quantity  *int           `json:"quantity,omitempty"`
	Payload   domain.Payload `json:"payload,omitempty"`
	Options   domain.Options `json:"options,omitempty"`
}

// ChangeQuantityRequestDTO adds one unit when offset is omitted.
type ChangeQuantityRequestDTO struct {
	VariantID int64          `json:"variant_id"`
	Offset    *int           `json:"offset,omitempty"`
	Payload   domain.Payload `json:"payload,omitempty"`
}

type SetQuantityRequestDTO struct {
	VariantID int64          `json:"variant_id"`
	Quantity  int            `json:"quantity"`
	Payload   domain.Payload `json:"payload,omitempty"`
}

type UpdateQuantitiesRequestDTO struct {
	Quantities map[string]int `json:"quantities"`
}

type UpdateChecksRequestDTO struct {
	Checks map[string]bool `json:"checks"`
}

type CouponRequestDTO struct {
	CouponID int64 `json:"coupon_id"`
}

type CartResponseDTO struct {
	Items   []domain.CartLine `json:"items"`
	Checked []domain.CartLine `json:"checked"`
	Coupons []int64           `json:"coupons"`
	Count   int               `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// storage opens the cart of the request session. A new Storage is built per
// request; it holds no state between calls.
func (h *CartHandler) storage(r *http.Request) *cart.Storage {
	return cart.NewStorage(session.ForSession(h.backend, getSessionID(r.Context())), h.opts...)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.respondCart(ctx, w, r, h.storage(r), http.StatusOK)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.VariantID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id must be positive")
		return
	}
	quantity := valueOr(req.Quantity, 1)
	if quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
		return
	}

	s := h.storage(r)
	if err := s.AddToCart(ctx, req.VariantID, quantity, req.Payload, req.Options); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusCreated)
}

func (h *CartHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key, ok := lineKey(w, r)
	if !ok {
		return
	}

	line, found, err := h.storage(r).StoredItem(ctx, key)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "not_found", "item not found in cart")
		return
	}

	respondJSON(w, http.StatusOK, line)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key, ok := lineKey(w, r)
	if !ok {
		return
	}

	s := h.storage(r)
	if err := s.RemoveByKey(ctx, key); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ChangeQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.VariantID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id must be positive")
		return
	}

	s := h.storage(r)
	if err := s.ChangeItemQuantity(ctx, req.VariantID, valueOr(req.Offset, 1), req.Payload); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SetQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.VariantID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id must be positive")
		return
	}

	s := h.storage(r)
	if err := s.SetItemQuantity(ctx, req.VariantID, req.Quantity, req.Payload); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) UpdateQuantities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantitiesRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.storage(r)
	if err := s.UpdateQuantities(ctx, req.Quantities); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) UpdateChecks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateChecksRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.storage(r)
	if err := s.UpdateChecks(ctx, req.Checks); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s := h.storage(r)
	if err := s.Clear(ctx); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) ClearChecked(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s := h.storage(r)
	if err := s.ClearChecked(ctx); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) AddCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CouponID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_coupon_id", "coupon_id must be positive")
		return
	}

	s := h.storage(r)
	if err := s.AddCoupon(ctx, req.CouponID); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	couponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || couponID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_coupon_id", "coupon id must be a positive integer")
		return
	}

	s := h.storage(r)
	if err := s.RemoveCoupon(ctx, couponID); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) ClearCoupons(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s := h.storage(r)
	if err := s.ClearCoupons(ctx); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondCart(ctx, w, r, s, http.StatusOK)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, s *cart.Storage, status int) {
	items, err := s.StoredItems(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	coupons, err := s.Coupons(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	checked := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		if item.Checked() {
			checked = append(checked, item)
		}
	}
	if coupons == nil {
		coupons = []int64{}
	}

	respondJSON(w, status, CartResponseDTO{
		Items:   items,
		Checked: checked,
		Coupons: coupons,
		Count:   len(items),
	})
}

// lineKey reads the {key} path parameter. chi matches on RawPath when the
// request carries one (for example an escaped '/'), and the parameter is
// then still escaped. Otherwise it is already decoded and must be used as is.
func lineKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_key", "line key is not a valid escaped path segment")
			return "", false
		}
		key = unescaped
	}
	if key == "" {
		respondError(w, http.StatusBadRequest, "invalid_key", "line key is required")
		return "", false
	}
	return key, true
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}

// handleError converts domain and infrastructure errors to HTTP responses.
func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	handleError(w, r, h.log, err)
}

func handleError(w http.ResponseWriter, r *http.Request, l *zap.Logger, err error) {
	var (
		httpStatus int
		code       string
	)

	switch {
	case errors.Is(err, cart.ErrItemNotFound), errors.Is(err, variant.ErrVariantNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, variant.ErrInvalidProduct):
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		logger.FromContext(r.Context(), l).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}
