package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/session"
)

const (
	ItemsKey   = "cart.items"
	CouponsKey = "cart.coupons"
)

var ErrItemNotFound = errors.New("item not found in cart")

// Storage keeps cart lines and applied coupons in a session store.
//
// Every call reads the whole snapshot, changes it and writes it back. Nothing
// is cached between calls and nothing is locked: two requests of the same
// session racing on a mutation end with the last write winning.
type Storage struct {
	store session.Store
	floor *int
}

type Option func(*Storage)

// WithQuantityFloor clamps quantities produced by ChangeItemQuantity,
// SetItemQuantity and UpdateQuantities to at least min. Without it
// quantities may go negative.
func WithQuantityFloor(min int) Option {
	return func(s *Storage) {
		s.floor = &min
	}
}

func NewStorage(store session.Store, opts ...Option) *Storage {
	s := &Storage{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddToCart merges quantity into the line derived from variantID and
// payload, or creates it. New lines are checked unless options say otherwise.
func (s *Storage) AddToCart(ctx context.Context, variantID int64, quantity int, payload domain.Payload, options domain.Options) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	key := DeriveKey(variantID, payload)

	if i := indexOf(items, key); i >= 0 {
		items[i].Quantity += quantity
	} else {
		opts := make(domain.Options, len(options)+1)
		for k, v := range options {
			opts[k] = v
		}
		if opts[domain.CheckedOption] == nil {
			opts[domain.CheckedOption] = true
		}
		items = append(items, domain.CartLine{
			Key:       key,
			VariantID: variantID,
			Quantity:  quantity,
			Options:   opts,
			Payload:   payload,
		})
	}

	return s.SetStoredItems(ctx, items)
}

func (s *Storage) StoredItemByPayload(ctx context.Context, variantID int64, payload domain.Payload) (domain.CartLine, bool, error) {
	return s.StoredItem(ctx, DeriveKey(variantID, payload))
}

func (s *Storage) StoredItem(ctx context.Context, key string) (domain.CartLine, bool, error) {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return domain.CartLine{}, false, err
	}
	if i := indexOf(items, key); i >= 0 {
		return items[i], true, nil
	}
	return domain.CartLine{}, false, nil
}

// SetStoredItem upserts line under key without deriving it. The stored
// line always carries key as its Key.
func (s *Storage) SetStoredItem(ctx context.Context, key string, line domain.CartLine) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	line.Key = key
	if i := indexOf(items, key); i >= 0 {
		items[i] = line
	} else {
		items = append(items, line)
	}

	return s.SetStoredItems(ctx, items)
}

func (s *Storage) Remove(ctx context.Context, variantID int64, payload domain.Payload) error {
	return s.RemoveByKey(ctx, DeriveKey(variantID, payload))
}

func (s *Storage) RemoveByKey(ctx context.Context, key string) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	if i := indexOf(items, key); i >= 0 {
		items = append(items[:i], items[i+1:]...)
	}

	return s.SetStoredItems(ctx, items)
}

// ChangeItemQuantity adds offset (which may be negative) to an existing line.
func (s *Storage) ChangeItemQuantity(ctx context.Context, variantID int64, offset int, payload domain.Payload) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	i := indexOf(items, DeriveKey(variantID, payload))
	if i < 0 {
		return fmt.Errorf("item %d: %w", variantID, ErrItemNotFound)
	}

	items[i].Quantity = s.clamp(items[i].Quantity + offset)

	return s.SetStoredItems(ctx, items)
}

func (s *Storage) SetItemQuantity(ctx context.Context, variantID int64, quantity int, payload domain.Payload) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	i := indexOf(items, DeriveKey(variantID, payload))
	if i < 0 {
		return fmt.Errorf("item %d: %w", variantID, ErrItemNotFound)
	}

	items[i].Quantity = s.clamp(quantity)

	return s.SetStoredItems(ctx, items)
}

// UpdateQuantities overwrites quantities by line key. Unknown keys are
// skipped so that stale client state does not fail the whole update.
func (s *Storage) UpdateQuantities(ctx context.Context, values map[string]int) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	for key, quantity := range values {
		if i := indexOf(items, key); i >= 0 {
			items[i].Quantity = s.clamp(quantity)
		}
	}

	return s.SetStoredItems(ctx, items)
}

func (s *Storage) Clear(ctx context.Context) error {
	return s.SetStoredItems(ctx, []domain.CartLine{})
}

// ClearChecked drops every checked line and keeps the unchecked ones.
func (s *Storage) ClearChecked(ctx context.Context) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	kept := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		if !item.Checked() {
			kept = append(kept, item)
		}
	}

	return s.SetStoredItems(ctx, kept)
}

// StoredItems returns every line in insertion order.
func (s *Storage) StoredItems(ctx context.Context) ([]domain.CartLine, error) {
	data, err := s.store.Get(ctx, ItemsKey)
	if errors.Is(err, session.ErrMissing) {
		return []domain.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}

	var items []domain.CartLine
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart items failed: %w", err)
	}
	if items == nil {
		items = []domain.CartLine{}
	}
	return items, nil
}

func (s *Storage) CheckedItems(ctx context.Context) ([]domain.CartLine, error) {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return nil, err
	}

	checked := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		if item.Checked() {
			checked = append(checked, item)
		}
	}
	return checked, nil
}

// UpdateChecks sets the checked flag by line key. Unknown keys are skipped.
func (s *Storage) UpdateChecks(ctx context.Context, checks map[string]bool) error {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return err
	}

	for key, check := range checks {
		if i := indexOf(items, key); i >= 0 {
			items[i].Options = items[i].Options.WithChecked(check)
		}
	}

	return s.SetStoredItems(ctx, items)
}

// SetStoredItems replaces the whole line collection.
func (s *Storage) SetStoredItems(ctx context.Context, items []domain.CartLine) error {
	if items == nil {
		items = []domain.CartLine{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart items failed: %w", err)
	}
	if err := s.store.Remember(ctx, ItemsKey, data); err != nil {
		return fmt.Errorf("save cart items: %w", err)
	}
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	items, err := s.StoredItems(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *Storage) AddCoupon(ctx context.Context, id int64) error {
	coupons, err := s.loadCoupons(ctx)
	if err != nil {
		return err
	}

	return s.saveCoupons(ctx, unique(append(coupons, id)))
}

func (s *Storage) RemoveCoupon(ctx context.Context, id int64) error {
	coupons, err := s.Coupons(ctx)
	if err != nil {
		return err
	}

	kept := make([]int64, 0, len(coupons))
	for _, c := range coupons {
		if c != id {
			kept = append(kept, c)
		}
	}

	return s.saveCoupons(ctx, kept)
}

// Coupons returns the applied coupon ids, first application first.
func (s *Storage) Coupons(ctx context.Context) ([]int64, error) {
	coupons, err := s.loadCoupons(ctx)
	if err != nil {
		return nil, err
	}
	return unique(coupons), nil
}

// ClearCoupons forgets the coupon key instead of storing an empty list.
func (s *Storage) ClearCoupons(ctx context.Context) error {
	if err := s.store.Forget(ctx, CouponsKey); err != nil {
		return fmt.Errorf("clear coupons: %w", err)
	}
	return nil
}

func (s *Storage) loadCoupons(ctx context.Context) ([]int64, error) {
	data, err := s.store.Get(ctx, CouponsKey)
	if errors.Is(err, session.ErrMissing) {
		return []int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load coupons: %w", err)
	}

	var coupons []int64
	if err := json.Unmarshal(data, &coupons); err != nil {
		return nil, fmt.Errorf("unmarshal coupons failed: %w", err)
	}
	if coupons == nil {
		coupons = []int64{}
	}
	return coupons, nil
}

func (s *Storage) saveCoupons(ctx context.Context, coupons []int64) error {
	data, err := json.Marshal(coupons)
	if err != nil {
		return fmt.Errorf("marshal coupons failed: %w", err)
	}
	if err := s.store.Remember(ctx, CouponsKey, data); err != nil {
		return fmt.Errorf("save coupons: %w", err)
	}
	return nil
}

func (s *Storage) clamp(quantity int) int {
	if s.floor != nil && quantity < *s.floor {
		return *s.floor
	}
	return quantity
}

func indexOf(items []domain.CartLine, key string) int {
	for i := range items {
		if items[i].Key == key {
			return i
		}
	}
	return -1
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
