package variant

import (
	"context"
	"errors"
	"strconv"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidProduct = errors.New("product_id must be greater than 0")

// Repository is the variant persistence the service needs.
type Repository interface {
	ListVariants(ctx context.Context, productID int64) ([]domain.Variant, error)
	CurrentHashes(ctx context.Context, productID int64) ([]string, error)
	SyncVariants(ctx context.Context, productID int64, variants []domain.Variant) ([]domain.Variant, error)
	MainVariant(ctx context.Context, productID int64) (domain.Variant, error)
	SaveMainVariant(ctx context.Context, v domain.Variant) (domain.Variant, error)
}

type Service struct {
	repo Repository
	sfg  singleflight.Group // collapses concurrent hash loads per product
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Generate builds candidates against an explicit list of current hashes.
// It does not touch the repository.
func (s *Service) Generate(productID int64, groups []domain.FeatureGroup, currentHashes []string) ([]domain.Variant, error) {
	if productID <= 0 {
		return nil, ErrInvalidProduct
	}
	return Generate(productID, groups, currentHashes), nil
}

// GenerateMissing builds candidates for the combinations not yet stored for
// productID. The hash snapshot is read once; callers that sync concurrently
// for the same product must coordinate themselves.
func (s *Service) GenerateMissing(ctx context.Context, productID int64, groups []domain.FeatureGroup) ([]domain.Variant, error) {
	if productID <= 0 {
		return nil, ErrInvalidProduct
	}

	v, err, _ := s.sfg.Do(strconv.FormatInt(productID, 10), func() (interface{}, error) {
		return s.repo.CurrentHashes(ctx, productID)
	})
	if err != nil {
		return nil, err
	}

	return Generate(productID, groups, v.([]string)), nil
}

func (s *Service) List(ctx context.Context, productID int64) ([]domain.Variant, error) {
	if productID <= 0 {
		return nil, ErrInvalidProduct
	}
	return s.repo.ListVariants(ctx, productID)
}

// Sync replaces the stored sub-variants of productID with variants. The
// input slice is not modified.
func (s *Service) Sync(ctx context.Context, productID int64, variants []domain.Variant) ([]domain.Variant, error) {
	if productID <= 0 {
		return nil, ErrInvalidProduct
	}
	normalised := make([]domain.Variant, len(variants))
	for i, v := range variants {
		v.ProductID = productID
		v.Primary = false
		if v.Hash == "" {
			v.Hash = Hash(v.Options)
		}
		normalised[i] = v
	}
	return s.repo.SyncVariants(ctx, productID, normalised)
}

func (s *Service) MainVariant(ctx context.Context, productID int64) (domain.Variant, error) {
	if productID <= 0 {
		return domain.Variant{}, ErrInvalidProduct
	}
	return s.repo.MainVariant(ctx, productID)
}

func (s *Service) SaveMainVariant(ctx context.Context, productID int64, v domain.Variant) (domain.Variant, error) {
	if productID <= 0 {
		return domain.Variant{}, ErrInvalidProduct
	}
	v.ProductID = productID
	v.Primary = true
	v.Hash = ""
	return s.repo.SaveMainVariant(ctx, v)
}
