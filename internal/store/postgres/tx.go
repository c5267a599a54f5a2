package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*pgTx)(nil)
)

type pgTx struct {
	tx         *sql.Tx
	savepoints int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *pgTx) Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func (t *pgTx) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, tax_rate_percent::float8 FROM tenants WHERE id = $1
	`, id).Scan(&tenant.ID, &tenant.Name, &tenant.TaxRatePercent)
	if err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, username, role, active, created_at FROM app_users WHERE id = $1
	`, id).Scan(&user.ID, &user.TenantID, &user.Username, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (t *pgTx) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, created_at FROM customers WHERE id = $1
	`, id).Scan(&customer.ID, &customer.TenantID, &customer.Name, &customer.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

func (t *pgTx) FindCustomerByName(ctx context.Context, tenantID string, name string) (*domain.Customer, error) {
	var customer domain.Customer
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, created_at
		FROM customers
		WHERE tenant_id = $1 AND lower(name) = lower(trim($2))
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, tenantID, name).Scan(&customer.ID, &customer.TenantID, &customer.Name, &customer.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

func (t *pgTx) CreateCustomer(ctx context.Context, customer domain.Customer) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO customers (id, tenant_id, name, created_at) VALUES ($1,$2,$3,$4)
	`, customer.ID, customer.TenantID, customer.Name, customer.CreatedAt)
	return mapWriteError(err)
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, tenantID string, id string) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, price, stock, available
		FROM products
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id).Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Stock, &p.Available)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *pgTx) ListProductOptions(ctx context.Context, productID string, kind domain.OptionKind) ([]domain.ProductOption, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, product_id, kind, name, price
		FROM product_options
		WHERE product_id = $1 AND kind = $2
		ORDER BY id
	`, productID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := make([]domain.ProductOption, 0, 4)
	for rows.Next() {
		var opt domain.ProductOption
		if err := rows.Scan(&opt.ID, &opt.ProductID, &opt.Kind, &opt.Name, &opt.Price); err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	return options, rows.Err()
}

func (t *pgTx) AdjustProductStock(ctx context.Context, productID string, delta int, strict bool) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2::int,
			available = CASE
				WHEN $2::int < 0 AND stock + $2::int <= 0 THEN false
				WHEN $2::int > 0 AND stock + $2::int > 0 THEN true
				ELSE available
			END,
			updated_at = now()
		WHERE id = $1 AND (NOT $3::boolean OR $2::int >= 0 OR stock + $2::int >= 0)
		RETURNING id, tenant_id, name, price, stock, available
	`, productID, delta, strict).Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Stock, &p.Available)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, store.ErrInsufficientStock
		}
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const orderColumns = `
	id, tenant_id, actor_id, customer_id, order_type, subtotal, discount, tax, total,
	payment_method, payment_status, order_status, voucher_id, voucher_code_id,
	prepared_by, prepared_at, cancel_reason, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var customerID, voucherID, voucherCodeID, preparedBy sql.NullString
	var preparedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.TenantID, &o.ActorID, &customerID, &o.OrderType, &o.Subtotal, &o.Discount, &o.Tax, &o.Total,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &voucherID, &voucherCodeID,
		&preparedBy, &preparedAt, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	o.CustomerID = customerID.String
	o.VoucherID = voucherID.String
	o.VoucherCodeID = voucherCodeID.String
	o.PreparedBy = preparedBy.String
	o.PreparedAt = timePtr(preparedAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		o.ID, o.TenantID, o.ActorID, nullIfEmpty(o.CustomerID), o.OrderType, o.Subtotal, o.Discount, o.Tax, o.Total,
		o.PaymentMethod, o.PaymentStatus, o.Status, nullIfEmpty(o.VoucherID), nullIfEmpty(o.VoucherCodeID),
		nullIfEmpty(o.PreparedBy), nullTime(o.PreparedAt), o.CancelReason, o.CreatedAt, o.UpdatedAt,
	)
	return mapWriteError(err)
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateOrder(ctx context.Context, o domain.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $2, payment_status = $3, prepared_by = $4, prepared_at = $5,
			cancel_reason = $6, updated_at = $7
		WHERE id = $1
	`, o.ID, o.Status, o.PaymentStatus, nullIfEmpty(o.PreparedBy), nullTime(o.PreparedAt), o.CancelReason, o.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return expectAffected(res)
}

func (t *pgTx) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, subtotal, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,(SELECT count(*) FROM order_items WHERE order_id = $2))
	`, item.ID, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal)
	if err != nil {
		return mapWriteError(err)
	}

	snapshots := []struct {
		kind    domain.OptionKind
		options []domain.OrderItemOption
	}{
		{domain.OptionVariation, item.Variations},
		{domain.OptionAddon, item.Addons},
	}
	for _, group := range snapshots {
		for pos, opt := range group.options {
			if _, err := t.tx.ExecContext(ctx, `
				INSERT INTO order_item_options (order_item_id, kind, option_id, name, price, position)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, item.ID, string(group.kind), opt.OptionID, opt.Name, opt.Price, pos); err != nil {
				return mapWriteError(err)
			}
		}
	}
	return nil
}

func (t *pgTx) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY position, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, 4)
	index := make(map[string]int)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			rows.Close()
			return nil, err
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	optRows, err := t.tx.QueryContext(ctx, `
		SELECT o.order_item_id, o.kind, o.option_id, o.name, o.price
		FROM order_item_options o
		JOIN order_items i ON i.id = o.order_item_id
		WHERE i.order_id = $1
		ORDER BY o.order_item_id, o.kind, o.position
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()
	for optRows.Next() {
		var (
			itemID string
			kind   domain.OptionKind
			opt    domain.OrderItemOption
		)
		if err := optRows.Scan(&itemID, &kind, &opt.OptionID, &opt.Name, &opt.Price); err != nil {
			return nil, err
		}
		i, ok := index[itemID]
		if !ok {
			continue
		}
		if kind == domain.OptionVariation {
			items[i].Variations = append(items[i].Variations, opt)
		} else {
			items[i].Addons = append(items[i].Addons, opt)
		}
	}
	return items, optRows.Err()
}

func (t *pgTx) UpsertPayment(ctx context.Context, p domain.Payment) error {
	if p.ID == "" {
		p.ID = xid.New("pay")
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, method, amount, tendered, change_amount, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (order_id)
		DO UPDATE SET method = EXCLUDED.method, amount = EXCLUDED.amount, tendered = EXCLUDED.tendered,
			change_amount = EXCLUDED.change_amount, paid_at = EXCLUDED.paid_at
	`, p.ID, p.OrderID, p.Method, p.Amount, nullInt64(p.Tendered), nullInt64(p.Change), p.PaidAt)
	return mapWriteError(err)
}

func (t *pgTx) GetPayment(ctx context.Context, orderID string) (*domain.Payment, error) {
	var (
		p                domain.Payment
		tendered, change sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, order_id, method, amount, tendered, change_amount, paid_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(&p.ID, &p.OrderID, &p.Method, &p.Amount, &tendered, &change, &p.PaidAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Tendered = int64Ptr(tendered)
	p.Change = int64Ptr(change)
	p.PaidAt = p.PaidAt.UTC()
	return &p, nil
}

func (t *pgTx) DeletePayment(ctx context.Context, orderID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM payments WHERE order_id = $1`, orderID)
	return err
}

func (t *pgTx) SumPaidRevenue(ctx context.Context, tenantID string) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(o.total), 0)
		FROM orders o
		JOIN payments p ON p.order_id = o.id
		WHERE o.tenant_id = $1 AND o.payment_status = 'paid' AND o.order_status <> 'cancelled'
	`, tenantID).Scan(&total)
	return total, err
}

const voucherColumns = `
	id, tenant_id, code, discount_amount, min_order_amount, max_order_amount,
	applicable_products, usage_limit, used_count, valid_from, valid_until, active`

func scanVoucher(row rowScanner) (*domain.Voucher, error) {
	var (
		v                     domain.Voucher
		maxOrder, usageLimit  sql.NullInt64
		applicable            []byte
		validFrom, validUntil sql.NullTime
	)
	err := row.Scan(&v.ID, &v.TenantID, &v.Code, &v.DiscountAmount, &v.MinOrderAmount, &maxOrder,
		&applicable, &usageLimit, &v.UsedCount, &validFrom, &validUntil, &v.Active)
	if err != nil {
		return nil, notFound(err)
	}
	v.MaxOrderAmount = int64Ptr(maxOrder)
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		v.UsageLimit = &limit
	}
	v.ValidFrom = timePtr(validFrom)
	v.ValidUntil = timePtr(validUntil)
	if len(applicable) > 0 {
		if err := json.Unmarshal(applicable, &v.ApplicableProducts); err != nil {
			return nil, fmt.Errorf("voucher %s applicable_products: %w", v.ID, err)
		}
	}
	return &v, nil
}

func (t *pgTx) FindVoucherByCode(ctx context.Context, tenantID string, code string) (*domain.Voucher, error) {
	return scanVoucher(t.tx.QueryRowContext(ctx, `
		SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id = $1 AND upper(code) = upper($2)
	`, tenantID, code))
}

func (t *pgTx) GetVoucher(ctx context.Context, id string) (*domain.Voucher, error) {
	return scanVoucher(t.tx.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id))
}

func (t *pgTx) FindVoucherCode(ctx context.Context, tenantID string, code string) (*domain.VoucherCode, error) {
	var (
		vc      domain.VoucherCode
		usedAt  sql.NullTime
		orderID sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT c.id, c.voucher_id, c.code, c.used, c.used_at, c.order_id
		FROM voucher_codes c
		JOIN vouchers v ON v.id = c.voucher_id
		WHERE v.tenant_id = $1 AND upper(c.code) = upper($2)
	`, tenantID, code).Scan(&vc.ID, &vc.VoucherID, &vc.Code, &vc.Used, &usedAt, &orderID)
	if err != nil {
		return nil, notFound(err)
	}
	vc.UsedAt = timePtr(usedAt)
	vc.OrderID = orderID.String
	return &vc, nil
}

func (t *pgTx) IncrementVoucherUsage(ctx context.Context, voucherID string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE vouchers SET used_count = used_count + 1 WHERE id = $1`, voucherID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) MarkVoucherCodeUsed(ctx context.Context, codeID string, orderID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE voucher_codes SET used = true, used_at = $3, order_id = $2
		WHERE id = $1 AND NOT used
	`, codeID, orderID, at)
	if err != nil {
		return mapWriteError(err)
	}
	if err := expectAffected(res); !errors.Is(err, store.ErrNotFound) {
		return err
	}
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM voucher_codes WHERE id = $1)`, codeID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return store.ErrConflict
	}
	return store.ErrNotFound
}

func (t *pgTx) InsertVoucherUsage(ctx context.Context, u domain.VoucherUsage) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO voucher_usage_logs (id, voucher_id, order_id, customer_id, discount, used_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, u.ID, u.VoucherID, u.OrderID, nullIfEmpty(u.CustomerID), u.Discount, u.UsedAt)
	return mapWriteError(err)
}

func (t *pgTx) ListProductRecipes(ctx context.Context, productID string) ([]domain.ProductRecipe, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, product_id, material_id, sub_recipe_id, quantity_per_unit
		FROM product_recipes
		WHERE product_id = $1
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipes := make([]domain.ProductRecipe, 0, 4)
	for rows.Next() {
		var (
			r                 domain.ProductRecipe
			materialID, subID sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ProductID, &materialID, &subID, &r.QuantityPerUnit); err != nil {
			return nil, err
		}
		r.MaterialID = materialID.String
		r.SubRecipeID = subID.String
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

func (t *pgTx) ListSubRecipeIngredients(ctx context.Context, subRecipeID string) ([]domain.SubRecipeIngredient, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT sub_recipe_id, material_id, quantity_per_unit
		FROM sub_recipe_ingredients
		WHERE sub_recipe_id = $1
		ORDER BY material_id
	`, subRecipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make([]domain.SubRecipeIngredient, 0, 4)
	for rows.Next() {
		var in domain.SubRecipeIngredient
		if err := rows.Scan(&in.SubRecipeID, &in.MaterialID, &in.QuantityPerUnit); err != nil {
			return nil, err
		}
		ingredients = append(ingredients, in)
	}
	return ingredients, rows.Err()
}

func (t *pgTx) GetRawMaterial(ctx context.Context, id string) (*domain.RawMaterial, error) {
	var m domain.RawMaterial
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, unit_type, current_cost, min_stock_level
		FROM raw_materials
		WHERE id = $1
	`, id).Scan(&m.ID, &m.TenantID, &m.Name, &m.UnitType, &m.CurrentCost, &m.MinStockLevel)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (t *pgTx) UpdateMaterialCost(ctx context.Context, id string, cost decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE raw_materials SET current_cost = $2 WHERE id = $1`, id, cost)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const batchColumns = `
	id, material_id, quantity_received, quantity_remaining, cost_per_unit, received_at, expires_at, exhausted`

func scanBatch(row rowScanner) (*domain.MaterialBatch, error) {
	var (
		b       domain.MaterialBatch
		expires sql.NullTime
	)
	err := row.Scan(&b.ID, &b.MaterialID, &b.QuantityReceived, &b.QuantityRemaining, &b.CostPerUnit, &b.ReceivedAt, &expires, &b.Exhausted)
	if err != nil {
		return nil, notFound(err)
	}
	b.ReceivedAt = b.ReceivedAt.UTC()
	b.ExpiresAt = timePtr(expires)
	return &b, nil
}

func (t *pgTx) queryBatches(ctx context.Context, query string, args ...any) ([]domain.MaterialBatch, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.MaterialBatch, 0, 8)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func (t *pgTx) LockOpenBatches(ctx context.Context, materialID string) ([]domain.MaterialBatch, error) {
	return t.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM material_batches
		WHERE material_id = $1 AND NOT exhausted
		ORDER BY id
		FOR UPDATE
	`, materialID)
}

func (t *pgTx) ListBatches(ctx context.Context, materialID string, includeExhausted bool) ([]domain.MaterialBatch, error) {
	return t.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM material_batches
		WHERE material_id = $1 AND ($2::boolean OR NOT exhausted)
		ORDER BY id
	`, materialID, includeExhausted)
}

func (t *pgTx) GetBatch(ctx context.Context, id string) (*domain.MaterialBatch, error) {
	return scanBatch(t.tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM material_batches WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertBatch(ctx context.Context, b domain.MaterialBatch) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO material_batches (`+batchColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, b.ID, b.MaterialID, b.QuantityReceived, b.QuantityRemaining, b.CostPerUnit, b.ReceivedAt, nullTime(b.ExpiresAt), b.Exhausted)
	return mapWriteError(err)
}

func (t *pgTx) UpdateBatch(ctx context.Context, b domain.MaterialBatch) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE material_batches
		SET quantity_remaining = $2, cost_per_unit = $3, expires_at = $4, exhausted = $5
		WHERE id = $1
	`, b.ID, b.QuantityRemaining, b.CostPerUnit, nullTime(b.ExpiresAt), b.Exhausted)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) DeleteBatch(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM material_batches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
