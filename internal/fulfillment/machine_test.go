package fulfillment

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"kedaipos/backend/internal/checkout"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/requestctx"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/store/memory"
)

const testTenant = "tenant-1"

var (
	cashier = domain.Actor{UserID: "usr-cashier", Username: "cashier", Role: domain.RoleCashier, TenantID: testTenant}
	guest   = domain.Actor{UserID: "usr-guest", Username: "guest", Role: domain.RoleCustomer, TenantID: testTenant}
)

type recordingNotifier struct {
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Enqueue(_ context.Context, note domain.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

type fixture struct {
	repo     *memory.Store
	checkout *checkout.Engine
	machine  *Machine
	notes    *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	repo.PutTenant(domain.Tenant{ID: testTenant, Name: "Kedai Uji", TaxRatePercent: 10})
	repo.PutUser(domain.UserAccount{ID: cashier.UserID, TenantID: testTenant, Username: "cashier", Role: domain.RoleCashier, Active: true})
	repo.PutUser(domain.UserAccount{ID: guest.UserID, TenantID: testTenant, Username: "guest", Role: domain.RoleCustomer, Active: true})
	repo.PutProduct(domain.Product{ID: "prd-1", TenantID: testTenant, Name: "Kopi Susu", Price: 10000, Stock: 10, Available: true})

	notes := &recordingNotifier{}
	return &fixture{
		repo:     repo,
		checkout: checkout.NewEngine(repo, nil, checkout.Options{}, zap.NewNop()),
		machine:  NewMachine(repo, notes, zap.NewNop()),
		notes:    notes,
	}
}

func actorCtx(actor domain.Actor) context.Context {
	ctx := requestctx.WithActor(context.Background(), actor)
	return requestctx.WithTenant(ctx, actor.TenantID)
}

func (f *fixture) order(t *testing.T, actor domain.Actor, method domain.PaymentMethod, quantity int, tendered int64) string {
	t.Helper()
	receipt, err := f.checkout.Commit(actorCtx(actor), checkout.Request{
		Cart:   []domain.CartLine{{ProductID: "prd-1", Quantity: quantity}},
		Tender: domain.Tender{Method: method, CashTendered: tendered},
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	return receipt.OrderID
}

func (f *fixture) product(t *testing.T) domain.Product {
	t.Helper()
	var product domain.Product
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProductForUpdate(ctx, testTenant, "prd-1")
		if err != nil {
			return err
		}
		product = *p
		return nil
	})
	if err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product
}

func (f *fixture) revenue(t *testing.T) int64 {
	t.Helper()
	var total int64
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		total, err = tx.SumPaidRevenue(ctx, testTenant)
		return err
	})
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	return total
}

func advance(t *testing.T, m *Machine, orderID string, want domain.OrderStatus) Result {
	t.Helper()
	current, err := m.Get(actorCtx(cashier), orderID)
	if err != nil {
		t.Fatalf("read order before advance: %v", err)
	}
	result, err := m.Advance(actorCtx(cashier), AdvanceRequest{OrderID: orderID, ExpectedStatus: current.Status})
	if err != nil {
		t.Fatalf("advance to %s failed: %v", want, err)
	}
	if !result.Changed || result.Order.Status != want {
		t.Fatalf("expected %s, got %+v", want, result)
	}
	return result
}

func TestNonCashOrderCapturesOnProcessing(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, guest, domain.PaymentQRIS, 2, 0)

	result := advance(t, f.machine, orderID, domain.StatusProcessing)
	if result.Order.PaymentStatus != domain.PaymentPaid || result.Order.Payment == nil {
		t.Fatalf("expected captured payment, got %+v", result.Order)
	}
	if result.Order.Payment.Amount != 22000 || result.Order.Payment.Tendered != nil {
		t.Fatalf("unexpected payment: %+v", result.Order.Payment)
	}
	if result.Notification.Type != domain.NotifyPaymentTaken {
		t.Fatalf("expected payment notification, got %s", result.Notification.Type)
	}

	ready := advance(t, f.machine, orderID, domain.StatusReady)
	if ready.Order.PreparedBy != cashier.UserID || ready.Order.PreparedAt == nil {
		t.Fatalf("expected prepared_by to be recorded, got %+v", ready.Order)
	}
	advance(t, f.machine, orderID, domain.StatusCompleted)

	if _, err := f.machine.Advance(actorCtx(cashier), AdvanceRequest{OrderID: orderID, ExpectedStatus: domain.StatusCompleted}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition past completed, got %v", err)
	}
	if len(f.notes.sent) != 3 || f.notes.sent[0].CustomerID == "" {
		t.Fatalf("expected three notifications addressed to the customer, got %+v", f.notes.sent)
	}
}

func TestCashOrderNeedsTenderBeforeQueueing(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, guest, domain.PaymentCash, 2, 0)

	_, err := f.machine.Advance(actorCtx(cashier), AdvanceRequest{OrderID: orderID, ExpectedStatus: domain.StatusPending, CashTendered: 20000})
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	order, err := f.machine.Get(actorCtx(cashier), orderID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if order.Status != domain.StatusPending || order.PaymentStatus != domain.PaymentUnpaid || order.Payment != nil {
		t.Fatalf("expected untouched pending order, got %+v", order)
	}

	result, err := f.machine.Advance(actorCtx(cashier), AdvanceRequest{OrderID: orderID, ExpectedStatus: domain.StatusPending, CashTendered: 25000})
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if result.Order.Status != domain.StatusCustomerCashPayment || result.Order.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("unexpected order: %+v", result.Order)
	}
	payment := result.Order.Payment
	if payment == nil || *payment.Tendered != 25000 || *payment.Change != 3000 || payment.Amount != 22000 {
		t.Fatalf("unexpected payment: %+v", payment)
	}

	advance(t, f.machine, orderID, domain.StatusProcessing)
}

func TestStaffCashOrderIsNotCapturedTwice(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, cashier, domain.PaymentCash, 2, 25000)

	result := advance(t, f.machine, orderID, domain.StatusCustomerCashPayment)
	if result.Notification.Type != domain.NotifyStatusChanged {
		t.Fatalf("expected a plain status notification, got %s", result.Notification.Type)
	}
	if *result.Order.Payment.Tendered != 25000 {
		t.Fatalf("expected commit-time payment kept, got %+v", result.Order.Payment)
	}
}

func TestStaleExpectedStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, cashier, domain.PaymentCard, 1, 0)

	first, err := f.machine.Advance(actorCtx(cashier), AdvanceRequest{OrderID: orderID, ExpectedStatus: domain.StatusPending})
	if err != nil || !first.Changed {
		t.Fatalf("first advance: changed=%v err=%v", first.Changed, err)
	}
	second, err := f.machine.Advance(actorCtx(cashier), AdvanceRequest{OrderID: orderID, ExpectedStatus: domain.StatusPending})
	if err != nil {
		t.Fatalf("duplicate advance must not fail: %v", err)
	}
	if second.Changed || second.Order.Status != domain.StatusProcessing || second.Notification != nil {
		t.Fatalf("expected no-op, got %+v", second)
	}
	if len(f.notes.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notes.sent))
	}
}

func TestAdvanceWithoutExpectedStatusIsRejected(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, cashier, domain.PaymentQRIS, 1, 0)

	for i := 0; i < 2; i++ {
		if _, err := f.machine.Advance(actorCtx(cashier), AdvanceRequest{OrderID: orderID}); !errors.Is(err, ErrExpectedStatus) {
			t.Fatalf("attempt %d: expected ErrExpectedStatus, got %v", i+1, err)
		}
	}
	order, err := f.machine.Get(actorCtx(cashier), orderID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if order.Status != domain.StatusPending || len(f.notes.sent) != 0 {
		t.Fatalf("expected untouched pending order, got %s with %d notifications", order.Status, len(f.notes.sent))
	}
}

func TestCancelReversesStockAndPayment(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, cashier, domain.PaymentCard, 10, 0)

	if p := f.product(t); p.Stock != 0 || p.Available {
		t.Fatalf("expected sold-out product, got %+v", p)
	}
	if got := f.revenue(t); got != 110000 {
		t.Fatalf("expected revenue 110000, got %d", got)
	}

	result, err := f.machine.Cancel(actorCtx(cashier), CancelRequest{OrderID: orderID, Reason: "customer left"})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Order.Status != domain.StatusCancelled || result.Order.PaymentStatus != domain.PaymentUnpaid || result.Order.Payment != nil {
		t.Fatalf("unexpected cancelled order: %+v", result.Order)
	}
	if result.Notification.Type != domain.NotifyCancelled || result.Notification.Message != "Your order was cancelled: customer left" {
		t.Fatalf("unexpected notification: %+v", result.Notification)
	}
	if p := f.product(t); p.Stock != 10 || !p.Available {
		t.Fatalf("expected stock restored and available, got %+v", p)
	}
	if got := f.revenue(t); got != 0 {
		t.Fatalf("expected cancelled sale out of revenue, got %d", got)
	}

	again, err := f.machine.Cancel(actorCtx(cashier), CancelRequest{OrderID: orderID})
	if err != nil || again.Changed {
		t.Fatalf("second cancel should be a no-op: changed=%v err=%v", again.Changed, err)
	}
	if p := f.product(t); p.Stock != 10 {
		t.Fatalf("stock restored twice: %d", p.Stock)
	}
}

func TestCancelCompletedOrderFails(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, cashier, domain.PaymentCard, 1, 0)
	for _, want := range []domain.OrderStatus{domain.StatusProcessing, domain.StatusReady, domain.StatusCompleted} {
		advance(t, f.machine, orderID, want)
	}
	if _, err := f.machine.Cancel(actorCtx(cashier), CancelRequest{OrderID: orderID}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.notes.err = errors.New("queue unavailable")
	orderID := f.order(t, cashier, domain.PaymentCard, 1, 0)

	advance(t, f.machine, orderID, domain.StatusProcessing)
	order, err := f.machine.Get(actorCtx(cashier), orderID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if order.Status != domain.StatusProcessing {
		t.Fatalf("expected transition to persist, got %s", order.Status)
	}
}

func TestOtherTenantCannotTouchOrder(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, cashier, domain.PaymentCard, 1, 0)

	intruder := domain.Actor{UserID: "usr-other", Role: domain.RoleOwner, TenantID: "tenant-2"}
	if _, err := f.machine.Advance(actorCtx(intruder), AdvanceRequest{OrderID: orderID, ExpectedStatus: domain.StatusPending}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.machine.Cancel(actorCtx(intruder), CancelRequest{OrderID: orderID}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.machine.Advance(context.Background(), AdvanceRequest{OrderID: orderID, ExpectedStatus: domain.StatusPending}); !errors.Is(err, ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}
}

func TestFlowSequences(t *testing.T) {
	cases := []struct {
		method  domain.PaymentMethod
		current domain.OrderStatus
		want    domain.OrderStatus
	}{
		{domain.PaymentCash, domain.StatusPending, domain.StatusCustomerCashPayment},
		{domain.PaymentCash, domain.StatusCustomerCashPayment, domain.StatusProcessing},
		{domain.PaymentCard, domain.StatusPending, domain.StatusProcessing},
		{domain.PaymentEWallet, domain.StatusProcessing, domain.StatusReady},
		{domain.PaymentQRIS, domain.StatusReady, domain.StatusCompleted},
	}
	for _, tc := range cases {
		got, err := flowFor(tc.method).next(tc.current)
		if err != nil || got != tc.want {
			t.Fatalf("%s from %s: got %s (%v), want %s", tc.method, tc.current, got, err, tc.want)
		}
	}

	if _, err := flowFor(domain.PaymentCard).next(domain.StatusCustomerCashPayment); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("non-cash order must not sit in the cash step, got %v", err)
	}
}
