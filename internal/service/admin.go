package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore"
)

type DashboardStats struct {
	TotalProducts    int             `json:"total_products"`
	TotalOrders      int             `json:"total_orders"`
	TotalUsers       int             `json:"total_users"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	PendingOrders    int             `json:"pending_orders"`
	LowStockProducts int             `json:"low_stock_products"`
}

// ProductInput is the admin product form. It is written as a whole on both
// create and update.
type ProductInput struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	OriginalPrice *decimal.Decimal
	ImageURL      string
	Category      string
	SKU           string
	Brand         string
	StockQuantity int
	IsActive      bool
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	if !in.Price.IsPositive() {
		return invalid("price", "must be greater than zero")
	}
	if in.OriginalPrice != nil && in.OriginalPrice.IsNegative() {
		return invalid("original_price", "must not be negative")
	}
	if in.StockQuantity < 0 {
		return invalid("stock_quantity", "must not be negative")
	}
	return nil
}

type productRow struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	ImageURL      string           `json:"image_url"`
	Category      string           `json:"category"`
	SKU           string           `json:"sku"`
	Brand         string           `json:"brand"`
	StockQuantity int              `json:"stock_quantity"`
	InStock       bool             `json:"in_stock"`
	IsActive      bool             `json:"is_active"`
}

func (in ProductInput) row() productRow {
	return productRow{
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		ImageURL:      in.ImageURL,
		Category:      in.Category,
		SKU:           in.SKU,
		Brand:         in.Brand,
		StockQuantity: in.StockQuantity,
		InStock:       in.StockQuantity > 0,
		IsActive:      in.IsActive,
	}
}

type activePatch struct {
	IsActive bool `json:"is_active"`
}

// AdminService backs the dashboard and product management screens.
// Callers check capabilities before invoking it.
type AdminService struct {
	store             rowstore.Store
	lowStockThreshold int
	log               *slog.Logger
}

func NewAdminService(store rowstore.Store, lowStockThreshold int, log *slog.Logger) *AdminService {
	if log == nil {
		log = slog.Default()
	}
	return &AdminService{store: store, lowStockThreshold: lowStockThreshold, log: log}
}

// Stats runs the dashboard queries concurrently. Any failure fails the
// whole call.
func (s *AdminService) Stats(ctx context.Context) (*DashboardStats, error) {
	var st DashboardStats
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int, table string, q *rowstore.Query) {
		g.Go(func() error {
			n, err := s.store.Count(ctx, table, q)
			if err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			*dst = n
			return nil
		})
	}
	count(&st.TotalProducts, model.TableProducts, nil)
	count(&st.TotalOrders, model.TableOrders, nil)
	count(&st.TotalUsers, model.TableProfiles, nil)
	count(&st.PendingOrders, model.TableOrders, rowstore.NewQuery().Eq("status", model.OrderStatusPending))
	count(&st.LowStockProducts, model.TableProducts, rowstore.NewQuery().Lt("stock_quantity", s.lowStockThreshold))

	g.Go(func() error {
		var paid []struct {
			TotalAmount decimal.Decimal `json:"total_amount"`
		}
		q := rowstore.NewQuery().Columns("total_amount").Eq("payment_status", model.PaymentStatusPaid)
		if err := s.store.Select(ctx, model.TableOrders, q, &paid); err != nil {
			return fmt.Errorf("sum revenue: %w", err)
		}
		total := decimal.Zero
		for _, o := range paid {
			total = total.Add(o.TotalAmount)
		}
		st.TotalRevenue = total
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListProducts returns every product, newest first, including inactive
// ones. search filters locally on name, category and SKU.
func (s *AdminService) ListProducts(ctx context.Context, search string) ([]model.Product, error) {
	var products []model.Product
	q := rowstore.NewQuery().Order("created_at", false)
	if err := s.store.Select(ctx, model.TableProducts, q, &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return products, nil
	}
	out := products[:0]
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Category), needle) ||
			strings.Contains(strings.ToLower(p.SKU), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *AdminService) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var p model.Product
	if err := s.store.Insert(ctx, model.TableProducts, in.row(), &p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.log.Info("product created", "product_id", p.ID, "name", p.Name)
	return &p, nil
}

func (s *AdminService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var p model.Product
	if err := s.store.Update(ctx, model.TableProducts, id, in.row(), &p); err != nil {
		if errors.Is(err, rowstore.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.log.Info("product updated", "product_id", p.ID)
	return &p, nil
}

func (s *AdminService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, model.TableProducts, id); err != nil {
		if errors.Is(err, rowstore.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.log.Info("product deleted", "product_id", id)
	return nil
}

func (s *AdminService) ToggleProductActive(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	products, err := productsByID(ctx, s.store, []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	current, ok := products[id]
	if !ok {
		return nil, ErrProductNotFound
	}

	var p model.Product
	if err := s.store.Update(ctx, model.TableProducts, id, activePatch{IsActive: !current.IsActive}, &p); err != nil {
		if errors.Is(err, rowstore.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("toggle product: %w", err)
	}
	return &p, nil
}
