package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// VariantService is the part of variant.Service the handlers call.
type VariantService interface {
	Generate(productID int64, groups []domain.FeatureGroup, currentHashes []string) ([]domain.Variant, error)
	GenerateMissing(ctx context.Context, productID int64, groups []domain.FeatureGroup) ([]domain.Variant, error)
	List(ctx context.Context, productID int64) ([]domain.Variant, error)
	Sync(ctx context.Context, productID int64, variants []domain.Variant) ([]domain.Variant, error)
	MainVariant(ctx context.Context, productID int64) (domain.Variant, error)
	SaveMainVariant(ctx context.Context, productID int64, v domain.Variant) (domain.Variant, error)
}

type VariantHandler struct {
	service VariantService
	timeout time.Duration
	log     *zap.Logger
}

func NewVariantHandler(service VariantService, timeout time.Duration, log *zap.Logger) *VariantHandler {
	return &VariantHandler{
		service: service,
		timeout: timeout,
		log:     log,
	}
}

// GenerateRequestDTO carries the option groups. When CurrentHashes is
// omitted the stored hashes of the product are used.
type GenerateRequestDTO struct {
	Groups        []domain.FeatureGroup `json:"groups"`
	CurrentHashes []string              `json:"current_hashes"`
}

type SyncRequestDTO struct {
	Variants []domain.Variant `json:"variants"`
}

type VariantsResponseDTO struct {
	ProductID int64            `json:"product_id"`
	Variants  []domain.Variant `json:"variants"`
}

func (h *VariantHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req GenerateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var (
		variants []domain.Variant
		err      error
	)
	if req.CurrentHashes != nil {
		variants, err = h.service.Generate(productID, req.Groups, req.CurrentHashes)
	} else {
		variants, err = h.service.GenerateMissing(ctx, productID, req.Groups)
	}
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, VariantsResponseDTO{ProductID: productID, Variants: variants})
}

func (h *VariantHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	variants, err := h.service.List(ctx, productID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, VariantsResponseDTO{ProductID: productID, Variants: variants})
}

func (h *VariantHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req SyncRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	variants, err := h.service.Sync(ctx, productID, req.Variants)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, VariantsResponseDTO{ProductID: productID, Variants: variants})
}

func (h *VariantHandler) GetMain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	v, err := h.service.MainVariant(ctx, productID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

func (h *VariantHandler) SaveMain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req domain.Variant
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	v, err := h.service.SaveMainVariant(ctx, productID, req)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}
