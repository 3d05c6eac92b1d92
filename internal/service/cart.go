package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// SessionReader exposes the signed-in user, nil when anonymous.
type SessionReader interface {
	CurrentUser() *model.User
}

type CartSnapshot struct {
	UserID     uuid.UUID
	Items      []model.CartItem
	TotalItems int
	TotalPrice decimal.Decimal
}

// CartService keeps the signed-in user's cart in memory and mirrors every
// mutation to the cart_items table. The lock is never held across a remote
// call, so concurrent mutations race and the last applied response wins.
type CartService struct {
	store   rowstore.Store
	session SessionReader
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	userID uuid.UUID
	items  []model.CartItem

	obs observers[CartSnapshot]
}

func NewCartService(store rowstore.Store, session SessionReader, log *slog.Logger) *CartService {
	if log == nil {
		log = slog.Default()
	}
	return &CartService{store: store, session: session, log: log, now: time.Now}
}

type cartInsert struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type quantityPatch struct {
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Load replaces the local cart with the user's rows, newest first.
func (s *CartService) Load(ctx context.Context, userID uuid.UUID) error {
	var rows []model.CartItem
	q := rowstore.NewQuery().Eq("user_id", userID).Order("created_at", false)
	if err := s.store.Select(ctx, model.TableCartItems, q, &rows); err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	products, err := productsByID(ctx, s.store, ids)
	if err != nil {
		return fmt.Errorf("load cart products: %w", err)
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

// Add puts one unit of the product in the cart. An existing line, local or
// remote, is incremented; otherwise a new line with quantity 1 is inserted.
func (s *CartService) Add(ctx context.Context, productID uuid.UUID) (*model.CartItem, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return nil, ErrAuthRequired
	}

	s.mu.Lock()
	existing, ok := s.findByProductLocked(user.ID, productID)
	s.mu.Unlock()

	if !ok {
		// The local cart may not be loaded yet; never create a second line.
		var rows []model.CartItem
		q := rowstore.NewQuery().Eq("user_id", user.ID).Eq("product_id", productID).Limit(1)
		if err := s.store.Select(ctx, model.TableCartItems, q, &rows); err != nil {
			return nil, fmt.Errorf("find cart item: %w", err)
		}
		if len(rows) > 0 {
			existing, ok = rows[0], true
		}
	}

	if ok {
		var row model.CartItem
		patch := quantityPatch{Quantity: existing.Quantity + 1, UpdatedAt: s.now().UTC()}
		if err := s.store.Update(ctx, model.TableCartItems, existing.ID, patch, &row); err != nil {
			return nil, fmt.Errorf("increment cart item: %w", err)
		}
		return s.applyQuantity(ctx, user.ID, row), nil
	}

	var row model.CartItem
	ins := cartInsert{UserID: user.ID, ProductID: productID, Quantity: 1}
	if err := s.store.Insert(ctx, model.TableCartItems, ins, &row); err != nil {
		return nil, fmt.Errorf("insert cart item: %w", err)
	}
	row.Product = s.lookupProduct(ctx, productID)

	s.mu.Lock()
	s.ownLocked(user.ID)
	s.items = append([]model.CartItem{row}, s.items...)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
	return &row, nil
}

// UpdateQuantity sets the line's quantity; n <= 0 removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, lineID uuid.UUID, n int) (*model.CartItem, error) {
	if n <= 0 {
		return nil, s.Remove(ctx, lineID)
	}
	user := s.session.CurrentUser()
	if user == nil {
		return nil, ErrAuthRequired
	}

	s.mu.Lock()
	_, ok := s.findLocked(user.ID, lineID)
	s.mu.Unlock()
	if !ok {
		return nil, ErrCartItemNotFound
	}

	var row model.CartItem
	patch := quantityPatch{Quantity: n, UpdatedAt: s.now().UTC()}
	if err := s.store.Update(ctx, model.TableCartItems, lineID, patch, &row); err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	return s.applyQuantity(ctx, user.ID, row), nil
}

func (s *CartService) Remove(ctx context.Context, lineID uuid.UUID) error {
	user := s.session.CurrentUser()
	if user == nil {
		return ErrAuthRequired
	}

	s.mu.Lock()
	_, ok := s.findLocked(user.ID, lineID)
	s.mu.Unlock()
	if !ok {
		return ErrCartItemNotFound
	}

	if err := s.store.Delete(ctx, model.TableCartItems, lineID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	s.mu.Lock()
	if i, ok := s.findLocked(user.ID, lineID); ok {
		s.items = append(s.items[:i:i], s.items[i+1:]...)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
	return nil
}

func (s *CartService) Items() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

func (s *CartService) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalItems(s.items)
}

func (s *CartService) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalPrice(s.items)
}

func (s *CartService) Snapshot() CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Reset drops local state without touching the store.
func (s *CartService) Reset() {
	s.mu.Lock()
	s.userID = uuid.Nil
	s.items = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
}

func (s *CartService) Subscribe(fn func(CartSnapshot)) func() {
	return s.obs.subscribe(fn)
}

// applyQuantity copies the persisted quantity onto the local line, keeping
// the joined product. A line missing locally is added with its product.
func (s *CartService) applyQuantity(ctx context.Context, userID uuid.UUID, row model.CartItem) *model.CartItem {
	s.mu.Lock()
	_, ok := s.findLocked(userID, row.ID)
	s.mu.Unlock()
	if !ok {
		row.Product = s.lookupProduct(ctx, row.ProductID)
	}

	s.mu.Lock()
	s.ownLocked(userID)
	var out model.CartItem
	if i, ok := s.findLocked(userID, row.ID); ok {
		s.items[i].Quantity = row.Quantity
		s.items[i].UpdatedAt = row.UpdatedAt
		out = s.items[i]
	} else {
		s.items = append([]model.CartItem{row}, s.items...)
		out = row
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obs.notify(snap)
	return &out
}

// ownLocked binds the local cart to userID, dropping lines held for anyone
// else.
func (s *CartService) ownLocked(userID uuid.UUID) {
	if s.userID != userID {
		s.userID = userID
		s.items = nil
	}
}

func (s *CartService) lookupProduct(ctx context.Context, id uuid.UUID) *model.Product {
	products, err := productsByID(ctx, s.store, []uuid.UUID{id})
	if err != nil {
		s.log.Warn("join cart product", "product_id", id, "error", err)
		return nil
	}
	return products[id]
}

// findLocked only sees lines held for userID.
func (s *CartService) findLocked(userID, lineID uuid.UUID) (int, bool) {
	if s.userID != userID {
		return -1, false
	}
	for i := range s.items {
		if s.items[i].ID == lineID {
			return i, true
		}
	}
	return -1, false
}

func (s *CartService) findByProductLocked(userID, productID uuid.UUID) (model.CartItem, bool) {
	if s.userID != userID {
		return model.CartItem{}, false
	}
	for _, it := range s.items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return model.CartItem{}, false
}

func (s *CartService) snapshotLocked() CartSnapshot {
	return CartSnapshot{
		UserID:     s.userID,
		Items:      cloneItems(s.items),
		TotalItems: totalItems(s.items),
		TotalPrice: totalPrice(s.items),
	}
}

func totalItems(items []model.CartItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func totalPrice(items []model.CartItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Subtotal())
	}
	return total
}

func cloneItems(items []model.CartItem) []model.CartItem {
	if items == nil {
		return nil
	}
	out := make([]model.CartItem, len(items))
	copy(out, items)
	return out
}
