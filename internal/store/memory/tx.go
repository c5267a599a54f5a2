package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

type memTx struct {
	st *tables
}

func (t *memTx) Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := t.st.clone()
	if err := fn(ctx); err != nil {
		t.st = saved
		return err
	}
	return nil
}

func (t *memTx) GetTenant(_ context.Context, id string) (*domain.Tenant, error) {
	tenant, ok := t.st.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &tenant, nil
}

func (t *memTx) GetUser(_ context.Context, id string) (*domain.UserAccount, error) {
	user, ok := t.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (t *memTx) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	customer, ok := t.st.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (t *memTx) FindCustomerByName(_ context.Context, tenantID string, name string) (*domain.Customer, error) {
	name = strings.TrimSpace(name)
	var match *domain.Customer
	for _, customer := range t.st.customers {
		if customer.TenantID != tenantID || !strings.EqualFold(customer.Name, name) {
			continue
		}
		if match == nil || customerBefore(customer, *match) {
			match = &customer
		}
	}
	if match == nil {
		return nil, store.ErrNotFound
	}
	return match, nil
}

// customerBefore orders duplicate names the way the SQL store does: by
// created_at, then id.
func customerBefore(a, b domain.Customer) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (t *memTx) CreateCustomer(_ context.Context, customer domain.Customer) error {
	if _, exists := t.st.customers[customer.ID]; exists {
		return store.ErrConflict
	}
	if _, ok := t.st.tenants[customer.TenantID]; !ok {
		return store.ErrNotFound
	}
	t.st.customers[customer.ID] = customer
	return nil
}

func (t *memTx) GetProductForUpdate(_ context.Context, tenantID string, id string) (*domain.Product, error) {
	product, ok := t.st.products[id]
	if !ok || product.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (t *memTx) ListProductOptions(_ context.Context, productID string, kind domain.OptionKind) ([]domain.ProductOption, error) {
	options := make([]domain.ProductOption, 0, 4)
	for _, option := range t.st.options {
		if option.ProductID == productID && option.Kind == kind {
			options = append(options, option)
		}
	}
	slices.SortFunc(options, func(a, b domain.ProductOption) int {
		return strings.Compare(a.ID, b.ID)
	})
	return options, nil
}

func (t *memTx) AdjustProductStock(_ context.Context, productID string, delta int, strict bool) (*domain.Product, error) {
	product, ok := t.st.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if strict && delta < 0 && product.Stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Stock += delta
	if delta < 0 && product.Stock <= 0 {
		product.Available = false
	}
	if delta > 0 && product.Stock > 0 {
		product.Available = true
	}
	t.st.products[productID] = product
	return &product, nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.st.orders[order.ID]; exists {
		return store.ErrConflict
	}
	if _, ok := t.st.tenants[order.TenantID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.st.users[order.ActorID]; !ok {
		return store.ErrNotFound
	}
	if order.CustomerID != "" {
		if _, ok := t.st.customers[order.CustomerID]; !ok {
			return store.ErrNotFound
		}
	}
	order.Items = nil
	order.Payment = nil
	t.st.orders[order.ID] = order
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	order, ok := t.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &order, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) UpdateOrder(_ context.Context, order domain.Order) error {
	existing, ok := t.st.orders[order.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Status = order.Status
	existing.PaymentStatus = order.PaymentStatus
	existing.PreparedBy = order.PreparedBy
	existing.PreparedAt = order.PreparedAt
	existing.CancelReason = order.CancelReason
	existing.UpdatedAt = order.UpdatedAt
	t.st.orders[order.ID] = existing
	return nil
}

func (t *memTx) InsertOrderItem(_ context.Context, item domain.OrderItem) error {
	if _, ok := t.st.orders[item.OrderID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return store.ErrNotFound
	}
	item.Variations = slices.Clone(item.Variations)
	item.Addons = slices.Clone(item.Addons)
	t.st.orderItems[item.OrderID] = append(t.st.orderItems[item.OrderID], item)
	return nil
}

func (t *memTx) ListOrderItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	return slices.Clone(t.st.orderItems[orderID]), nil
}

func (t *memTx) UpsertPayment(_ context.Context, payment domain.Payment) error {
	if _, ok := t.st.orders[payment.OrderID]; !ok {
		return store.ErrNotFound
	}
	if existing, ok := t.st.payments[payment.OrderID]; ok {
		payment.ID = existing.ID
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	t.st.payments[payment.OrderID] = payment
	return nil
}

func (t *memTx) GetPayment(_ context.Context, orderID string) (*domain.Payment, error) {
	payment, ok := t.st.payments[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &payment, nil
}

func (t *memTx) DeletePayment(_ context.Context, orderID string) error {
	delete(t.st.payments, orderID)
	return nil
}

func (t *memTx) SumPaidRevenue(_ context.Context, tenantID string) (int64, error) {
	var total int64
	for id, order := range t.st.orders {
		if order.TenantID != tenantID || order.PaymentStatus != domain.PaymentPaid || order.Status == domain.StatusCancelled {
			continue
		}
		if _, ok := t.st.payments[id]; !ok {
			continue
		}
		total += order.Total
	}
	return total, nil
}

func (t *memTx) FindVoucherByCode(_ context.Context, tenantID string, code string) (*domain.Voucher, error) {
	for _, voucher := range t.st.vouchers {
		if voucher.TenantID == tenantID && strings.EqualFold(voucher.Code, code) {
			voucher.ApplicableProducts = slices.Clone(voucher.ApplicableProducts)
			return &voucher, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) FindVoucherCode(_ context.Context, tenantID string, code string) (*domain.VoucherCode, error) {
	for _, vc := range t.st.voucherCodes {
		if !strings.EqualFold(vc.Code, code) {
			continue
		}
		if parent, ok := t.st.vouchers[vc.VoucherID]; ok && parent.TenantID == tenantID {
			return &vc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) GetVoucher(_ context.Context, id string) (*domain.Voucher, error) {
	voucher, ok := t.st.vouchers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	voucher.ApplicableProducts = slices.Clone(voucher.ApplicableProducts)
	return &voucher, nil
}

func (t *memTx) IncrementVoucherUsage(_ context.Context, voucherID string) error {
	voucher, ok := t.st.vouchers[voucherID]
	if !ok {
		return store.ErrNotFound
	}
	voucher.UsedCount++
	t.st.vouchers[voucherID] = voucher
	return nil
}

func (t *memTx) MarkVoucherCodeUsed(_ context.Context, codeID string, orderID string, at time.Time) error {
	vc, ok := t.st.voucherCodes[codeID]
	if !ok {
		return store.ErrNotFound
	}
	if vc.Used {
		return store.ErrConflict
	}
	vc.Used = true
	vc.UsedAt = &at
	vc.OrderID = orderID
	t.st.voucherCodes[codeID] = vc
	return nil
}

func (t *memTx) InsertVoucherUsage(_ context.Context, usage domain.VoucherUsage) error {
	if _, ok := t.st.vouchers[usage.VoucherID]; !ok {
		return store.ErrNotFound
	}
	t.st.voucherUsage = append(t.st.voucherUsage, usage)
	return nil
}

func (t *memTx) ListProductRecipes(_ context.Context, productID string) ([]domain.ProductRecipe, error) {
	return slices.Clone(t.st.recipes[productID]), nil
}

func (t *memTx) ListSubRecipeIngredients(_ context.Context, subRecipeID string) ([]domain.SubRecipeIngredient, error) {
	return slices.Clone(t.st.subRecipes[subRecipeID]), nil
}

func (t *memTx) GetRawMaterial(_ context.Context, id string) (*domain.RawMaterial, error) {
	material, ok := t.st.materials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &material, nil
}

func (t *memTx) UpdateMaterialCost(_ context.Context, id string, cost decimal.Decimal) error {
	material, ok := t.st.materials[id]
	if !ok {
		return store.ErrNotFound
	}
	material.CurrentCost = cost
	t.st.materials[id] = material
	return nil
}

func (t *memTx) LockOpenBatches(ctx context.Context, materialID string) ([]domain.MaterialBatch, error) {
	return t.ListBatches(ctx, materialID, false)
}

func (t *memTx) ListBatches(_ context.Context, materialID string, includeExhausted bool) ([]domain.MaterialBatch, error) {
	batches := make([]domain.MaterialBatch, 0, 8)
	for _, batch := range t.st.batches {
		if batch.MaterialID != materialID {
			continue
		}
		if batch.Exhausted && !includeExhausted {
			continue
		}
		batches = append(batches, batch)
	}
	slices.SortFunc(batches, compareBatchID)
	return batches, nil
}

func (t *memTx) GetBatch(_ context.Context, id string) (*domain.MaterialBatch, error) {
	batch, ok := t.st.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (t *memTx) InsertBatch(_ context.Context, batch domain.MaterialBatch) error {
	if _, ok := t.st.materials[batch.MaterialID]; !ok {
		return store.ErrNotFound
	}
	if _, exists := t.st.batches[batch.ID]; exists {
		return store.ErrConflict
	}
	t.st.batches[batch.ID] = batch
	return nil
}

func (t *memTx) UpdateBatch(_ context.Context, batch domain.MaterialBatch) error {
	if _, ok := t.st.batches[batch.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.batches[batch.ID] = batch
	return nil
}

func (t *memTx) DeleteBatch(_ context.Context, id string) error {
	if _, ok := t.st.batches[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.batches, id)
	return nil
}
