package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

// Repository runs units of work. Everything written through the Tx handed to fn
// commits together when fn returns nil and is discarded otherwise.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Tx interface {
	// Savepoint runs fn so that a failure inside it only undoes fn's own writes.
	Savepoint(ctx context.Context, fn func(ctx context.Context) error) error

	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	GetUser(ctx context.Context, id string) (*domain.UserAccount, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByName(ctx context.Context, tenantID string, name string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) error

	GetProductForUpdate(ctx context.Context, tenantID string, id string) (*domain.Product, error)
	ListProductOptions(ctx context.Context, productID string, kind domain.OptionKind) ([]domain.ProductOption, error)
	// AdjustProductStock adds delta to the product's stock. A sale that leaves stock at or below
	// zero marks the product unavailable; a restock that leaves it positive marks it available.
	// With strict set, a decrement that would go negative fails with ErrInsufficientStock.
	AdjustProductStock(ctx context.Context, productID string, delta int, strict bool) (*domain.Product, error)

	InsertOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order) error
	InsertOrderItem(ctx context.Context, item domain.OrderItem) error
	ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)

	UpsertPayment(ctx context.Context, payment domain.Payment) error
	GetPayment(ctx context.Context, orderID string) (*domain.Payment, error)
	DeletePayment(ctx context.Context, orderID string) error
	SumPaidRevenue(ctx context.Context, tenantID string) (int64, error)

	FindVoucherByCode(ctx context.Context, tenantID string, code string) (*domain.Voucher, error)
	FindVoucherCode(ctx context.Context, tenantID string, code string) (*domain.VoucherCode, error)
	GetVoucher(ctx context.Context, id string) (*domain.Voucher, error)
	IncrementVoucherUsage(ctx context.Context, voucherID string) error
	MarkVoucherCodeUsed(ctx context.Context, codeID string, orderID string, at time.Time) error
	InsertVoucherUsage(ctx context.Context, usage domain.VoucherUsage) error

	ListProductRecipes(ctx context.Context, productID string) ([]domain.ProductRecipe, error)
	ListSubRecipeIngredients(ctx context.Context, subRecipeID string) ([]domain.SubRecipeIngredient, error)

	GetRawMaterial(ctx context.Context, id string) (*domain.RawMaterial, error)
	UpdateMaterialCost(ctx context.Context, id string, cost decimal.Decimal) error
	// LockOpenBatches returns the material's non-exhausted batches, locked for the rest of the transaction.
	LockOpenBatches(ctx context.Context, materialID string) ([]domain.MaterialBatch, error)
	ListBatches(ctx context.Context, materialID string, includeExhausted bool) ([]domain.MaterialBatch, error)
	GetBatch(ctx context.Context, id string) (*domain.MaterialBatch, error)
	InsertBatch(ctx context.Context, batch domain.MaterialBatch) error
	UpdateBatch(ctx context.Context, batch domain.MaterialBatch) error
	DeleteBatch(ctx context.Context, id string) error
}
