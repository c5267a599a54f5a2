package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleOwner    = "owner"
	RoleCashier  = "cashier"
	RoleCustomer = "customer"
)

type Actor struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

// IsStaff reports whether the actor operates the till rather than ordering for themselves.
func (a Actor) IsStaff() bool {
	return a.Role == RoleOwner || a.Role == RoleCashier
}

type Tenant struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
}

type UserAccount struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

type OptionKind string

const (
	OptionVariation OptionKind = "variation"
	OptionAddon     OptionKind = "addon"
)

// ProductOption is a variation (price adjustment) or an add-on (extra price) offered for a product.
type ProductOption struct {
	ID        string     `json:"id"`
	ProductID string     `json:"product_id"`
	Kind      OptionKind `json:"kind"`
	Name      string     `json:"name"`
	Price     int64      `json:"price"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeaway OrderType = "takeaway"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeDineIn || t == OrderTypeTakeaway
}

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentQRIS    PaymentMethod = "qris"
	PaymentEWallet PaymentMethod = "ewallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentQRIS, PaymentEWallet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type OrderStatus string

const (
	StatusPending             OrderStatus = "pending"
	StatusCustomerCashPayment OrderStatus = "customer_cash_payment"
	StatusProcessing          OrderStatus = "processing"
	StatusReady               OrderStatus = "ready"
	StatusCompleted           OrderStatus = "completed"
	StatusCancelled           OrderStatus = "cancelled"
)

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Tender is how the buyer settles. Cash carries the amount physically handed over.
type Tender struct {
	Method       PaymentMethod `json:"method"`
	CashTendered int64         `json:"cash_tendered,omitempty"`
}

type CartLine struct {
	ProductID    string   `json:"product_id"`
	Quantity     int      `json:"quantity"`
	UnitPrice    int64    `json:"unit_price"`
	VariationIDs []string `json:"variations,omitempty"`
	AddonIDs     []string `json:"addons,omitempty"`
}

type Order struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	ActorID       string        `json:"actor_id"`
	CustomerID    string        `json:"customer_id,omitempty"`
	OrderType     OrderType     `json:"order_type"`
	Subtotal      int64         `json:"subtotal"`
	Discount      int64         `json:"discount"`
	Tax           int64         `json:"tax"`
	Total         int64         `json:"total"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Status        OrderStatus   `json:"order_status"`
	VoucherID     string        `json:"voucher_id,omitempty"`
	VoucherCodeID string        `json:"voucher_code_id,omitempty"`
	PreparedBy    string        `json:"prepared_by,omitempty"`
	PreparedAt    *time.Time    `json:"prepared_at,omitempty"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []OrderItem   `json:"items,omitempty"`
	Payment       *Payment      `json:"payment,omitempty"`
}

type OrderItem struct {
	ID          string            `json:"id"`
	OrderID     string            `json:"order_id"`
	ProductID   string            `json:"product_id"`
	ProductName string            `json:"product_name"`
	Quantity    int               `json:"quantity"`
	UnitPrice   int64             `json:"unit_price"`
	Subtotal    int64             `json:"subtotal"`
	Variations  []OrderItemOption `json:"variations,omitempty"`
	Addons      []OrderItemOption `json:"addons,omitempty"`
}

// OrderItemOption is an immutable copy of a selected option taken at sale time.
type OrderItemOption struct {
	OptionID string `json:"option_id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
}

type Payment struct {
	ID       string        `json:"id"`
	OrderID  string        `json:"order_id"`
	Method   PaymentMethod `json:"method"`
	Amount   int64         `json:"amount"`
	Tendered *int64        `json:"tendered,omitempty"`
	Change   *int64        `json:"change,omitempty"`
	PaidAt   time.Time     `json:"paid_at"`
}

type Voucher struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	Code               string     `json:"code"`
	DiscountAmount     int64      `json:"discount_amount"`
	MinOrderAmount     int64      `json:"min_order_amount"`
	MaxOrderAmount     *int64     `json:"max_order_amount,omitempty"`
	ApplicableProducts []string   `json:"applicable_products,omitempty"`
	UsageLimit         *int       `json:"usage_limit,omitempty"`
	UsedCount          int        `json:"used_count"`
	ValidFrom          *time.Time `json:"valid_from,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
	Active             bool       `json:"active"`
}

// VoucherCode is a single-use code redeeming its parent voucher.
type VoucherCode struct {
	ID        string     `json:"id"`
	VoucherID string     `json:"voucher_id"`
	Code      string     `json:"code"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	OrderID   string     `json:"order_id,omitempty"`
}

type VoucherUsage struct {
	ID         string    `json:"id"`
	VoucherID  string    `json:"voucher_id"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Discount   int64     `json:"discount"`
	UsedAt     time.Time `json:"used_at"`
}

type RawMaterial struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Name          string          `json:"name"`
	UnitType      string          `json:"unit_type"`
	CurrentCost   decimal.Decimal `json:"current_cost"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
}

type MaterialBatch struct {
	ID                string          `json:"id"`
	MaterialID        string          `json:"material_id"`
	QuantityReceived  decimal.Decimal `json:"quantity_received"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	ReceivedAt        time.Time       `json:"received_at"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	Exhausted         bool            `json:"exhausted"`
}

// ProductRecipe is one bill-of-materials row. Exactly one of MaterialID and SubRecipeID is set.
type ProductRecipe struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	MaterialID      string          `json:"material_id,omitempty"`
	SubRecipeID     string          `json:"sub_recipe_id,omitempty"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type SubRecipeIngredient struct {
	SubRecipeID     string          `json:"sub_recipe_id"`
	MaterialID      string          `json:"material_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type MaterialStock struct {
	Material    RawMaterial     `json:"material"`
	Quantity    decimal.Decimal `json:"quantity"`
	OpenBatches int             `json:"open_batches"`
	BelowMin    bool            `json:"below_min"`
}

type NotificationType string

const (
	NotifyStatusChanged NotificationType = "order_status"
	NotifyPaymentTaken  NotificationType = "payment_captured"
	NotifyCancelled     NotificationType = "order_cancelled"
)

type Notification struct {
	OrderID    string           `json:"order_id"`
	CustomerID string           `json:"customer_id,omitempty"`
	TenantID   string           `json:"tenant_id"`
	Type       NotificationType `json:"type"`
	Status     OrderStatus      `json:"status"`
	Message    string           `json:"message"`
	At         time.Time        `json:"at"`
}
