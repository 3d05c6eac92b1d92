package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Table names in the hosted row-store.
const (
	TableProducts      = "products"
	TableCartItems     = "cart_items"
	TableWishlistItems = "wishlist_items"
	TableAdminUsers    = "admin_users"
	TableOrders        = "orders"
	TableOrderItems    = "order_items"
	TableProfiles      = "profiles"
)

type Product struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	ImageURL      string           `json:"image_url"`
	Category      string           `json:"category"`
	SKU           string           `json:"sku,omitempty"`
	Brand         string           `json:"brand,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	InStock       bool             `json:"in_stock"`
	IsActive      bool             `json:"is_active"`
	Rating        decimal.Decimal  `json:"rating"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Discounted reports whether an original price above the current one is set.
func (p *Product) Discounted() bool {
	return p.OriginalPrice != nil && p.OriginalPrice.GreaterThan(p.Price)
}

// CartItem is a cart line joined with its product. Product is nil when the
// referenced product no longer exists.
type CartItem struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Product   *Product  `json:"-"`
}

// Subtotal is price × quantity, zero for an orphaned line.
func (c *CartItem) Subtotal() decimal.Decimal {
	if c.Product == nil {
		return decimal.Zero
	}
	return c.Product.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type WishlistItem struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
	Product   *Product  `json:"-"`
}

type AdminUser struct {
	ID          uuid.UUID `json:"id"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

const PaymentStatusPaid = "paid"

type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress map[string]any  `json:"shipping_address,omitempty"`
	BillingAddress  map[string]any  `json:"billing_address,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderItem keeps the unit price at the time of purchase.
type OrderItem struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// ExpiresWithin reports whether the access token expires before now+d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}
