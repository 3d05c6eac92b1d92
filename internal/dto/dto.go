package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/casa-storefront/internal/format"
	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/service"
)

// --- Auth ---

type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SignUpRequest struct {
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
}

type SessionResponse struct {
	State   string        `json:"state"`
	User    *UserResponse `json:"user"`
	IsAdmin bool          `json:"is_admin"`
}

type SignUpResponse struct {
	User                 *UserResponse `json:"user"`
	ConfirmationRequired bool          `json:"confirmation_required"`
}

func ToUser(u *model.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{ID: u.ID, Email: u.Email, EmailConfirmed: u.EmailConfirmedAt != nil}
}

func ToSession(s service.SessionSnapshot) SessionResponse {
	return SessionResponse{State: s.State.String(), User: ToUser(s.User), IsAdmin: s.IsAdmin}
}

// --- Product ---

type ListProductsRequest struct {
	Category string `form:"category"`
	Search   string `form:"search"`
}

type ProductResponse struct {
	ID                   uuid.UUID        `json:"id"`
	Name                 string           `json:"name"`
	Description          string           `json:"description"`
	Price                decimal.Decimal  `json:"price"`
	PriceDisplay         string           `json:"price_display"`
	OriginalPrice        *decimal.Decimal `json:"original_price,omitempty"`
	OriginalPriceDisplay string           `json:"original_price_display,omitempty"`
	ImageURL             string           `json:"image_url"`
	Category             string           `json:"category"`
	SKU                  string           `json:"sku,omitempty"`
	Brand                string           `json:"brand,omitempty"`
	StockQuantity        int              `json:"stock_quantity"`
	InStock              bool             `json:"in_stock"`
	IsActive             bool             `json:"is_active"`
	Rating               decimal.Decimal  `json:"rating"`
	CreatedAt            time.Time        `json:"created_at"`
}

func ToProduct(p *model.Product) ProductResponse {
	resp := ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		PriceDisplay:  format.Price(p.Price),
		ImageURL:      p.ImageURL,
		Category:      p.Category,
		SKU:           p.SKU,
		Brand:         p.Brand,
		StockQuantity: p.StockQuantity,
		InStock:       p.InStock,
		IsActive:      p.IsActive,
		Rating:        p.Rating,
		CreatedAt:     p.CreatedAt,
	}
	// The struck-through price is only shown for a real discount.
	if p.Discounted() {
		resp.OriginalPrice = p.OriginalPrice
		resp.OriginalPriceDisplay = format.Price(*p.OriginalPrice)
	}
	return resp
}

func ToProducts(products []model.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for i := range products {
		out = append(out, ToProduct(&products[i]))
	}
	return out
}

// ProductRequest is the admin product form.
type ProductRequest struct {
	Name          string           `json:"name" binding:"required"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price" binding:"required"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	ImageURL      string           `json:"image_url"`
	Category      string           `json:"category"`
	SKU           string           `json:"sku"`
	Brand         string           `json:"brand"`
	StockQuantity int              `json:"stock_quantity" binding:"min=0"`
	IsActive      *bool            `json:"is_active"`
}

// ToInput defaults IsActive to true, as the create form does.
func (r ProductRequest) ToInput() service.ProductInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return service.ProductInput{
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		OriginalPrice: r.OriginalPrice,
		ImageURL:      r.ImageURL,
		Category:      r.Category,
		SKU:           r.SKU,
		Brand:         r.Brand,
		StockQuantity: r.StockQuantity,
		IsActive:      active,
	}
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
}

type UpdateCartItemRequest struct {
	// Quantity 0 removes the line.
	Quantity *int `json:"quantity" binding:"required"`
}

type CartItemResponse struct {
	ID              uuid.UUID        `json:"id"`
	ProductID       uuid.UUID        `json:"product_id"`
	Quantity        int              `json:"quantity"`
	Product         *ProductResponse `json:"product"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	SubtotalDisplay string           `json:"subtotal_display"`
}

type CartResponse struct {
	Items             []CartItemResponse `json:"items"`
	TotalItems        int                `json:"total_items"`
	TotalPrice        decimal.Decimal    `json:"total_price"`
	TotalPriceDisplay string             `json:"total_price_display"`
}

func ToCartItem(it *model.CartItem) CartItemResponse {
	resp := CartItemResponse{
		ID:              it.ID,
		ProductID:       it.ProductID,
		Quantity:        it.Quantity,
		Subtotal:        it.Subtotal(),
		SubtotalDisplay: format.Price(it.Subtotal()),
	}
	if it.Product != nil {
		p := ToProduct(it.Product)
		resp.Product = &p
	}
	return resp
}

func ToCart(s service.CartSnapshot) CartResponse {
	items := make([]CartItemResponse, 0, len(s.Items))
	for i := range s.Items {
		items = append(items, ToCartItem(&s.Items[i]))
	}
	return CartResponse{
		Items:             items,
		TotalItems:        s.TotalItems,
		TotalPrice:        s.TotalPrice,
		TotalPriceDisplay: format.Price(s.TotalPrice),
	}
}

// --- Wishlist ---

type AddWishlistItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
}

type WishlistItemResponse struct {
	ID        uuid.UUID        `json:"id"`
	ProductID uuid.UUID        `json:"product_id"`
	Product   *ProductResponse `json:"product"`
	CreatedAt time.Time        `json:"created_at"`
}

type WishlistResponse struct {
	Items []WishlistItemResponse `json:"items"`
	Count int                    `json:"count"`
}

func ToWishlistItem(it *model.WishlistItem) WishlistItemResponse {
	resp := WishlistItemResponse{ID: it.ID, ProductID: it.ProductID, CreatedAt: it.CreatedAt}
	if it.Product != nil {
		p := ToProduct(it.Product)
		resp.Product = &p
	}
	return resp
}

func ToWishlist(s service.WishlistSnapshot) WishlistResponse {
	items := make([]WishlistItemResponse, 0, len(s.Items))
	for i := range s.Items {
		items = append(items, ToWishlistItem(&s.Items[i]))
	}
	return WishlistResponse{Items: items, Count: len(items)}
}

// --- Admin ---

type StatsResponse struct {
	service.DashboardStats
	TotalRevenueDisplay string `json:"total_revenue_display"`
	TotalUsersDisplay   string `json:"total_users_display"`
	TotalOrdersDisplay  string `json:"total_orders_display"`
}

func ToStats(st *service.DashboardStats) StatsResponse {
	return StatsResponse{
		DashboardStats:      *st,
		TotalRevenueDisplay: format.Price(st.TotalRevenue),
		TotalUsersDisplay:   format.Compact(int64(st.TotalUsers)),
		TotalOrdersDisplay:  format.Compact(int64(st.TotalOrders)),
	}
}
