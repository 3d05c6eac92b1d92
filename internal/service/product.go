package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore"
)

var ErrProductNotFound = errors.New("product not found")

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var categories = []Category{
	{ID: "chairs", Name: "Chairs", Icon: "🪑"},
	{ID: "tables", Name: "Tables", Icon: "🪑"},
	{ID: "lamps", Name: "Lamps", Icon: "💡"},
	{ID: "decor", Name: "Decor", Icon: "🏺"},
}

type ListProducts struct {
	Category string
	Search   string
}

// CatalogService serves the storefront's read-only product views.
type CatalogService struct {
	store         rowstore.Store
	featuredLimit int
}

func NewCatalogService(store rowstore.Store, featuredLimit int) *CatalogService {
	if featuredLimit <= 0 {
		featuredLimit = 6
	}
	return &CatalogService{store: store, featuredLimit: featuredLimit}
}

func (s *CatalogService) Featured(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	q := rowstore.NewQuery().
		Eq("is_active", true).
		Eq("in_stock", true).
		Limit(s.featuredLimit)
	if err := s.store.Select(ctx, model.TableProducts, q, &products); err != nil {
		return nil, fmt.Errorf("list featured products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) List(ctx context.Context, req ListProducts) ([]model.Product, error) {
	q := rowstore.NewQuery().Eq("is_active", true).Order("created_at", false)
	if req.Category != "" {
		q.Eq("category", req.Category)
	}
	if req.Search != "" {
		q.ILike("name", req.Search)
	}

	var products []model.Product
	if err := s.store.Select(ctx, model.TableProducts, q, &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) Categories(context.Context) []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (s *CatalogService) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	products, err := productsByID(ctx, s.store, []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	p, ok := products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// productsByID fetches the given products in one query. Missing ids are
// absent from the result.
func productsByID(ctx context.Context, store rowstore.Store, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	vals := make([]any, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		vals = append(vals, id)
	}

	var products []model.Product
	if err := store.Select(ctx, model.TableProducts, rowstore.NewQuery().In("id", vals...), &products); err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}
