package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore"
)

var ErrWishlistItemNotFound = errors.New("wishlist item not found")

type WishlistSnapshot struct {
	UserID uuid.UUID
	Items  []model.WishlistItem
}

// WishlistService mirrors the wishlist_items table for the signed-in user.
type WishlistService struct {
	store   rowstore.Store
	session SessionReader
	log     *slog.Logger

	mu     sync.Mutex
	userID uuid.UUID
	items  []model.WishlistItem

	obs observers[WishlistSnapshot]
}

func NewWishlistService(store rowstore.Store, session SessionReader, log *slog.Logger) *WishlistService {
	if log == nil {
		log = slog.Default()
	}
	return &WishlistService{store: store, session: session, log: log}
}

type wishlistInsert struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
}

func (s *WishlistService) Load(ctx context.Context, userID uuid.UUID) error {
	var rows []model.WishlistItem
	q := rowstore.NewQuery().Eq("user_id", userID).Order("created_at", false)
	if err := s.store.Select(ctx, model.TableWishlistItems, q, &rows); err != nil {
		return fmt.Errorf("load wishlist: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	products, err := productsByID(ctx, s.store, ids)
	if err != nil {
		return fmt.Errorf("load wishlist products: %w", err)
	}
	for i := range rows {
		rows[i].Product = products[rows[i].ProductID]
	}

	s.mu.Lock()
	s.userID = userID
	s.items = rows
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
	return nil
}

// Add is idempotent: a line already held locally or already stored
// remotely is returned instead of inserting a duplicate.
func (s *WishlistService) Add(ctx context.Context, productID uuid.UUID) (*model.WishlistItem, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return nil, ErrAuthRequired
	}

	s.mu.Lock()
	if i, ok := s.findByProductLocked(productID); ok {
		item := s.items[i]
		s.mu.Unlock()
		return &item, nil
	}
	s.mu.Unlock()

	var existing []model.WishlistItem
	q := rowstore.NewQuery().Eq("user_id", user.ID).Eq("product_id", productID).Limit(1)
	if err := s.store.Select(ctx, model.TableWishlistItems, q, &existing); err != nil {
		return nil, fmt.Errorf("check wishlist item: %w", err)
	}

	var row model.WishlistItem
	if len(existing) > 0 {
		row = existing[0]
	} else {
		ins := wishlistInsert{UserID: user.ID, ProductID: productID}
		if err := s.store.Insert(ctx, model.TableWishlistItems, ins, &row); err != nil {
			return nil, fmt.Errorf("insert wishlist item: %w", err)
		}
	}
	row.Product = s.lookupProduct(ctx, productID)

	s.mu.Lock()
	s.userID = user.ID
	if i, ok := s.findByProductLocked(productID); ok {
		// A concurrent Add got there first.
		row = s.items[i]
	} else {
		s.items = append([]model.WishlistItem{row}, s.items...)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
	return &row, nil
}

func (s *WishlistService) Remove(ctx context.Context, lineID uuid.UUID) error {
	if s.session.CurrentUser() == nil {
		return ErrAuthRequired
	}

	s.mu.Lock()
	_, ok := s.findLocked(lineID)
	s.mu.Unlock()
	if !ok {
		return ErrWishlistItemNotFound
	}

	if err := s.store.Delete(ctx, model.TableWishlistItems, lineID); err != nil {
		return fmt.Errorf("delete wishlist item: %w", err)
	}

	s.mu.Lock()
	if i, ok := s.findLocked(lineID); ok {
		s.items = append(s.items[:i:i], s.items[i+1:]...)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
	return nil
}

func (s *WishlistService) Contains(productID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.findByProductLocked(productID)
	return ok
}

func (s *WishlistService) Items() []model.WishlistItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneWishlist(s.items)
}

func (s *WishlistService) Snapshot() WishlistSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *WishlistService) Reset() {
	s.mu.Lock()
	s.userID = uuid.Nil
	s.items = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
}

func (s *WishlistService) Subscribe(fn func(WishlistSnapshot)) func() {
	return s.obs.subscribe(fn)
}

func (s *WishlistService) lookupProduct(ctx context.Context, id uuid.UUID) *model.Product {
	products, err := productsByID(ctx, s.store, []uuid.UUID{id})
	if err != nil {
		s.log.Warn("join wishlist product", "product_id", id, "error", err)
		return nil
	}
	return products[id]
}

func (s *WishlistService) findLocked(lineID uuid.UUID) (int, bool) {
	for i := range s.items {
		if s.items[i].ID == lineID {
			return i, true
		}
	}
	return -1, false
}

func (s *WishlistService) findByProductLocked(productID uuid.UUID) (int, bool) {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

func (s *WishlistService) snapshotLocked() WishlistSnapshot {
	return WishlistSnapshot{UserID: s.userID, Items: cloneWishlist(s.items)}
}

func cloneWishlist(items []model.WishlistItem) []model.WishlistItem {
	if items == nil {
		return nil
	}
	out := make([]model.WishlistItem, len(items))
	copy(out, items)
	return out
}
