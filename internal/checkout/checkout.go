package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
	"time"

	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/requestctx"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/voucher"
	"kedaipos/backend/internal/xid"
)

const maxLineQuantity = 1000

// maxOrderAmount keeps totals well inside the range float64 tax rounding
// represents exactly.
const maxOrderAmount int64 = 1_000_000_000_000_000

type MaterialPolicy string

const (
	// TolerateShortage keeps a finished-goods sale going when the raw-material
	// ledger cannot cover its recipe. The gap is logged and reported as a warning.
	TolerateShortage MaterialPolicy = "tolerate"
	// EnforceMaterials aborts the sale instead.
	EnforceMaterials MaterialPolicy = "enforce"
)

type Options struct {
	// StrictStock refuses to sell finished goods below zero stock.
	StrictStock    bool
	MaterialPolicy MaterialPolicy
}

type Request struct {
	Cart            []domain.CartLine `json:"cart"`
	OrderType       domain.OrderType  `json:"order_type"`
	Tender          domain.Tender     `json:"tender"`
	CustomerName    string            `json:"customer_name,omitempty"`
	VoucherCode     string            `json:"voucher_code,omitempty"`
	ClaimedDiscount int64             `json:"claimed_discount,omitempty"`
}

type Receipt struct {
	OrderID       string               `json:"order_id"`
	CustomerID    string               `json:"customer_id,omitempty"`
	Subtotal      int64                `json:"subtotal"`
	Discount      int64                `json:"discount"`
	Tax           int64                `json:"tax"`
	Total         int64                `json:"total"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	OrderStatus   domain.OrderStatus   `json:"order_status"`
	Tendered      *int64               `json:"tendered,omitempty"`
	Change        *int64               `json:"change,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
}

type Engine struct {
	repo     store.Repository
	vouchers *voucher.Validator
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(repo store.Repository, vouchers *voucher.Validator, opts Options, logger *zap.Logger) *Engine {
	if vouchers == nil {
		vouchers = voucher.NewValidator(nil)
	}
	if opts.MaterialPolicy == "" {
		opts.MaterialPolicy = TolerateShortage
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:     repo,
		vouchers: vouchers,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Commit turns a cart into an order in one unit of work: order row, line items
// with option snapshots, stock and material deductions, payment and voucher
// redemption all commit together or not at all.
func (e *Engine) Commit(ctx context.Context, req Request) (Receipt, error) {
	log := requestctx.Logger(ctx, e.logger)

	actor, ok := requestctx.Actor(ctx)
	if !ok || actor.UserID == "" {
		return Receipt{}, consistency("missing actor", nil)
	}
	tenantID, ok := requestctx.Tenant(ctx)
	if !ok {
		return Receipt{}, consistency("missing tenant", nil)
	}
	if err := validateRequest(req); err != nil {
		log.Info("cart rejected", zap.String("reason", err.Reason))
		return Receipt{}, err
	}

	var receipt Receipt
	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		run := &commitRun{
			engine:   e,
			tx:       tx,
			log:      log,
			actor:    actor,
			tenantID: tenantID,
			req:      req,
			now:      e.now(),
		}
		var err error
		receipt, err = run.execute(ctx)
		return err
	})
	if err != nil {
		var commitErr *CommitError
		if !errors.As(err, &commitErr) {
			commitErr = consistency("commit failed", err)
		}
		if commitErr.Kind == KindConsistency {
			log.Error("order commit failed", zap.String("actor_id", actor.UserID), zap.String("detail", commitErr.Detail()))
		} else {
			log.Info("order rejected", zap.String("kind", string(commitErr.Kind)), zap.String("reason", commitErr.Reason))
		}
		return Receipt{}, commitErr
	}

	log.Info("order committed",
		zap.String("order_id", receipt.OrderID),
		zap.Int64("total", receipt.Total),
		zap.String("payment_status", string(receipt.PaymentStatus)),
		zap.Int("warnings", len(receipt.Warnings)))
	return receipt, nil
}

func validateRequest(req Request) *CommitError {
	if len(req.Cart) == 0 {
		return invalidCart("cart is empty")
	}
	for i, line := range req.Cart {
		if strings.TrimSpace(line.ProductID) == "" {
			return invalidCart("line %d has no product", i+1)
		}
		if line.Quantity <= 0 {
			return invalidCart("line %d quantity must be positive", i+1)
		}
		if line.Quantity > maxLineQuantity {
			return invalidCart("line %d quantity exceeds %d", i+1, maxLineQuantity)
		}
	}
	if req.OrderType != "" && !req.OrderType.Valid() {
		return invalidCart("unsupported order type %q", req.OrderType)
	}
	if !req.Tender.Method.Valid() {
		return invalidCart("unsupported payment method %q", req.Tender.Method)
	}
	if req.Tender.CashTendered < 0 {
		return invalidCart("cash tendered must not be negative")
	}
	return nil
}

type pricedLine struct {
	product    domain.Product
	quantity   int
	unitPrice  int64
	subtotal   int64
	variations []domain.OrderItemOption
	addons     []domain.OrderItemOption
}

type commitRun struct {
	engine   *Engine
	tx       store.Tx
	log      *zap.Logger
	actor    domain.Actor
	tenantID string
	req      Request
	now      time.Time
}

func (r *commitRun) execute(ctx context.Context) (Receipt, error) {
	tenant, err := r.tx.GetTenant(ctx, r.tenantID)
	if err != nil {
		return Receipt{}, consistency("tenant "+r.tenantID+" not found", err)
	}
	user, err := r.tx.GetUser(ctx, r.actor.UserID)
	if err != nil {
		return Receipt{}, consistency("actor "+r.actor.UserID+" not found", err)
	}
	if user.TenantID != tenant.ID {
		return Receipt{}, consistency("actor "+user.ID+" belongs to another tenant", nil)
	}
	customerID, err := r.resolveCustomer(ctx)
	if err != nil {
		return Receipt{}, err
	}

	lines := make([]pricedLine, 0, len(r.req.Cart))
	productIDs := make([]string, 0, len(r.req.Cart))
	var subtotal int64
	for _, cartLine := range r.req.Cart {
		priced, err := r.priceLine(ctx, cartLine)
		if err != nil {
			return Receipt{}, err
		}
		lines = append(lines, priced)
		productIDs = append(productIDs, priced.product.ID)
		if priced.subtotal > maxOrderAmount-subtotal {
			return Receipt{}, invalidCart("order subtotal exceeds %d", maxOrderAmount)
		}
		subtotal += priced.subtotal
	}

	var redemption *voucher.Result
	var discount int64
	if code := strings.TrimSpace(r.req.VoucherCode); code != "" {
		res, err := r.engine.vouchers.Validate(ctx, r.tx, voucher.Input{
			TenantID:        r.tenantID,
			Code:            code,
			Subtotal:        subtotal,
			ClaimedDiscount: r.req.ClaimedDiscount,
			ProductIDs:      productIDs,
		})
		if err != nil {
			if errors.Is(err, voucher.ErrRejected) {
				return Receipt{}, &CommitError{Kind: KindVoucherRejected, Reason: err.Error(), Err: err}
			}
			return Receipt{}, consistency("validate voucher", err)
		}
		redemption = &res
		discount = res.Discount
	}

	tax := computeTax(subtotal-discount, tenant.TaxRatePercent)
	total := subtotal - discount + tax
	if total <= 0 {
		return Receipt{}, invalidCart("order total must be positive")
	}

	method := r.req.Tender.Method
	immediate := r.actor.IsStaff()
	if immediate && method == domain.PaymentCash && r.req.Tender.CashTendered < total {
		return Receipt{}, &CommitError{
			Kind:   KindInsufficientCash,
			Reason: fmt.Sprintf("cash tendered %d is less than total %d", r.req.Tender.CashTendered, total),
		}
	}

	order := domain.Order{
		ID:            xid.New("ord"),
		TenantID:      tenant.ID,
		ActorID:       user.ID,
		CustomerID:    customerID,
		OrderType:     r.req.OrderType,
		Subtotal:      subtotal,
		Discount:      discount,
		Tax:           tax,
		Total:         total,
		PaymentMethod: method,
		PaymentStatus: domain.PaymentUnpaid,
		Status:        domain.StatusPending,
		CreatedAt:     r.now,
		UpdatedAt:     r.now,
	}
	if order.OrderType == "" {
		order.OrderType = domain.OrderTypeDineIn
	}
	if immediate {
		order.PaymentStatus = domain.PaymentPaid
	}
	if redemption != nil {
		order.VoucherID = redemption.Voucher.ID
		if redemption.Code != nil {
			order.VoucherCodeID = redemption.Code.ID
		}
	}
	if err := r.tx.InsertOrder(ctx, order); err != nil {
		return Receipt{}, consistency("insert order", err)
	}
	if err := r.verifyOrder(ctx, order); err != nil {
		return Receipt{}, err
	}

	for _, line := range lines {
		if err := r.writeLine(ctx, order.ID, line); err != nil {
			return Receipt{}, err
		}
	}

	var warnings []string
	for _, line := range lines {
		lineWarnings, err := r.deductMaterials(ctx, line)
		if err != nil {
			return Receipt{}, err
		}
		warnings = append(warnings, lineWarnings...)
	}

	receipt := Receipt{
		OrderID:       order.ID,
		CustomerID:    customerID,
		Subtotal:      subtotal,
		Discount:      discount,
		Tax:           tax,
		Total:         total,
		PaymentMethod: method,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.Status,
		Warnings:      warnings,
	}

	if immediate {
		payment := domain.Payment{
			ID:      xid.New("pay"),
			OrderID: order.ID,
			Method:  method,
			Amount:  total,
			PaidAt:  r.now,
		}
		if method == domain.PaymentCash {
			tendered := r.req.Tender.CashTendered
			change := tendered - total
			payment.Tendered = &tendered
			payment.Change = &change
			receipt.Tendered = &tendered
			receipt.Change = &change
		}
		if err := r.tx.UpsertPayment(ctx, payment); err != nil {
			return Receipt{}, consistency("insert payment", err)
		}
	}

	if redemption != nil {
		if err := r.redeem(ctx, order, *redemption); err != nil {
			return Receipt{}, err
		}
	}

	return receipt, nil
}

// resolveCustomer finds or creates the named buyer. Self-service customers
// without a display name are recorded under their username.
func (r *commitRun) resolveCustomer(ctx context.Context) (string, error) {
	name := strings.TrimSpace(r.req.CustomerName)
	if name == "" && r.actor.Role == domain.RoleCustomer {
		name = r.actor.Username
	}
	if name == "" {
		return "", nil
	}

	found, err := r.tx.FindCustomerByName(ctx, r.tenantID, name)
	switch {
	case err == nil:
		_, getErr := r.tx.GetCustomer(ctx, found.ID)
		if getErr == nil {
			return found.ID, nil
		}
		if !errors.Is(getErr, store.ErrNotFound) {
			return "", consistency("load customer "+found.ID, getErr)
		}
		r.log.Warn("matched customer vanished, re-creating", zap.String("customer_id", found.ID))
	case !errors.Is(err, store.ErrNotFound):
		return "", consistency("find customer", err)
	}

	customer := domain.Customer{
		ID:        xid.New("cus"),
		TenantID:  r.tenantID,
		Name:      name,
		CreatedAt: r.now,
	}
	if err := r.tx.CreateCustomer(ctx, customer); err != nil {
		return "", consistency("create customer", err)
	}
	return customer.ID, nil
}

// priceLine recomputes the unit price from the menu. A client-supplied price
// is never trusted.
func (r *commitRun) priceLine(ctx context.Context, line domain.CartLine) (pricedLine, error) {
	product, err := r.tx.GetProductForUpdate(ctx, r.tenantID, line.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return pricedLine{}, invalidCart("product %s not found", line.ProductID)
	}
	if err != nil {
		return pricedLine{}, consistency("load product "+line.ProductID, err)
	}
	if !product.Available {
		return pricedLine{}, invalidCart("%s is not available", product.Name)
	}

	variations, err := r.selectOptions(ctx, product, domain.OptionVariation, line.VariationIDs)
	if err != nil {
		return pricedLine{}, err
	}
	addons, err := r.selectOptions(ctx, product, domain.OptionAddon, line.AddonIDs)
	if err != nil {
		return pricedLine{}, err
	}

	unit := product.Price
	for _, opt := range variations {
		unit += opt.Price
	}
	for _, opt := range addons {
		unit += opt.Price
	}
	if unit < 0 {
		return pricedLine{}, invalidCart("%s has a negative price", product.Name)
	}
	hi, lineTotal := bits.Mul64(uint64(unit), uint64(line.Quantity))
	if hi != 0 || lineTotal > uint64(maxOrderAmount) {
		return pricedLine{}, invalidCart("%s line total exceeds %d", product.Name, maxOrderAmount)
	}
	if line.UnitPrice != 0 && line.UnitPrice != unit {
		r.log.Warn("client unit price ignored",
			zap.String("product_id", product.ID),
			zap.Int64("client_price", line.UnitPrice),
			zap.Int64("price", unit))
	}

	return pricedLine{
		product:    *product,
		quantity:   line.Quantity,
		unitPrice:  unit,
		subtotal:   int64(lineTotal),
		variations: variations,
		addons:     addons,
	}, nil
}

func (r *commitRun) selectOptions(ctx context.Context, product *domain.Product, kind domain.OptionKind, ids []string) ([]domain.OrderItemOption, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	offered, err := r.tx.ListProductOptions(ctx, product.ID, kind)
	if err != nil {
		return nil, consistency("load options for "+product.ID, err)
	}
	byID := make(map[string]domain.ProductOption, len(offered))
	for _, opt := range offered {
		byID[opt.ID] = opt
	}

	selected := make([]domain.OrderItemOption, 0, len(ids))
	for _, id := range ids {
		opt, ok := byID[id]
		if !ok {
			return nil, invalidCart("%s %s is not offered for %s", kind, id, product.Name)
		}
		selected = append(selected, domain.OrderItemOption{OptionID: opt.ID, Name: opt.Name, Price: opt.Price})
	}
	return selected, nil
}

// verifyOrder reads the inserted row back and checks its references.
func (r *commitRun) verifyOrder(ctx context.Context, want domain.Order) error {
	got, err := r.tx.GetOrder(ctx, want.ID)
	if err != nil {
		return consistency("read back order "+want.ID, err)
	}
	if got.TenantID != want.TenantID || got.ActorID != want.ActorID ||
		got.CustomerID != want.CustomerID || got.VoucherID != want.VoucherID {
		return consistency(fmt.Sprintf("order %s references do not match request", want.ID), nil)
	}
	return nil
}

func (r *commitRun) writeLine(ctx context.Context, orderID string, line pricedLine) error {
	item := domain.OrderItem{
		ID:          xid.New("itm"),
		OrderID:     orderID,
		ProductID:   line.product.ID,
		ProductName: line.product.Name,
		Quantity:    line.quantity,
		UnitPrice:   line.unitPrice,
		Subtotal:    line.subtotal,
		Variations:  line.variations,
		Addons:      line.addons,
	}
	if err := r.tx.InsertOrderItem(ctx, item); err != nil {
		return consistency("insert order item", err)
	}

	product, err := r.tx.AdjustProductStock(ctx, line.product.ID, -line.quantity, r.engine.opts.StrictStock)
	if errors.Is(err, store.ErrInsufficientStock) {
		return &CommitError{
			Kind:   KindInsufficientStock,
			Reason: fmt.Sprintf("not enough %s in stock", line.product.Name),
			Err:    err,
		}
	}
	if err != nil {
		return consistency("decrement stock for "+line.product.ID, err)
	}
	if product.Stock < 0 {
		r.log.Warn("product oversold", zap.String("product_id", product.ID), zap.Int("stock", product.Stock))
	}
	return nil
}

func (r *commitRun) redeem(ctx context.Context, order domain.Order, res voucher.Result) error {
	if err := r.tx.IncrementVoucherUsage(ctx, res.Voucher.ID); err != nil {
		return consistency("increment voucher usage", err)
	}
	if res.Code != nil {
		err := r.tx.MarkVoucherCodeUsed(ctx, res.Code.ID, order.ID, r.now)
		if errors.Is(err, store.ErrConflict) {
			rejection := &voucher.RejectionError{Code: res.Code.Code, Reason: voucher.ReasonExhausted}
			return &CommitError{Kind: KindVoucherRejected, Reason: rejection.Error(), Err: rejection}
		}
		if err != nil {
			return consistency("mark voucher code used", err)
		}
	}
	usage := domain.VoucherUsage{
		ID:         xid.New("vus"),
		VoucherID:  res.Voucher.ID,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Discount:   res.Discount,
		UsedAt:     r.now,
	}
	if err := r.tx.InsertVoucherUsage(ctx, usage); err != nil {
		return consistency("log voucher usage", err)
	}
	return nil
}

// computeTax rounds half away from zero on the discounted base.
func computeTax(base int64, ratePercent float64) int64 {
	if base <= 0 || ratePercent <= 0 {
		return 0
	}
	return int64(math.Round(float64(base) * ratePercent / 100))
}
