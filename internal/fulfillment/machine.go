package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/notify"
	"kedaipos/backend/internal/requestctx"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

var (
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrInsufficientCash  = errors.New("cash tendered is less than order total")
	ErrMissingActor      = errors.New("order transitions require an actor and tenant")
	ErrExpectedStatus    = errors.New("expected_status is required")
)

type AdvanceRequest struct {
	OrderID string `json:"-"`
	// ExpectedStatus is the status the caller last saw. A request whose
	// expectation no longer matches the stored status is a no-op.
	ExpectedStatus domain.OrderStatus `json:"expected_status"`
	CashTendered   int64              `json:"cash_tendered,omitempty"`
}

type CancelRequest struct {
	OrderID string `json:"-"`
	Reason  string `json:"reason,omitempty"`
}

type Result struct {
	Order        domain.Order         `json:"order"`
	Changed      bool                 `json:"changed"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

type Machine struct {
	repo     store.Repository
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewMachine(repo store.Repository, notifier notify.Notifier, logger *zap.Logger) *Machine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the order with its items and payment, scoped to the caller's tenant.
func (m *Machine) Get(ctx context.Context, orderID string) (domain.Order, error) {
	tenantID, ok := requestctx.Tenant(ctx)
	if !ok {
		return domain.Order{}, ErrMissingActor
	}
	var order domain.Order
	err := m.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := lockOrder(ctx, tx, tenantID, orderID, false)
		if err != nil {
			return err
		}
		order, err = hydrate(ctx, tx, *found)
		return err
	})
	return order, err
}

// Advance moves an order one step along its payment method's flow. The next
// status is always derived from the stored state, never from the request.
func (m *Machine) Advance(ctx context.Context, req AdvanceRequest) (Result, error) {
	actor, tenantID, err := callerOf(ctx)
	if err != nil {
		return Result{}, err
	}
	if req.ExpectedStatus == "" {
		return Result{}, ErrExpectedStatus
	}
	log := requestctx.Logger(ctx, m.logger)

	var result Result
	err = m.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := lockOrder(ctx, tx, tenantID, req.OrderID, true)
		if err != nil {
			return err
		}
		if order.Status != req.ExpectedStatus {
			result.Order, err = hydrate(ctx, tx, *order)
			return err
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
		}

		f := flowFor(order.PaymentMethod)
		next, err := f.next(order.Status)
		if err != nil {
			return err
		}
		now := m.now()

		noteType := domain.NotifyStatusChanged
		if next == f.capture && order.PaymentStatus == domain.PaymentUnpaid {
			if err := capture(ctx, tx, order, f, req.CashTendered, now); err != nil {
				return err
			}
			noteType = domain.NotifyPaymentTaken
		}
		if next == domain.StatusReady {
			order.PreparedBy = actor.UserID
			order.PreparedAt = &now
		}
		order.Status = next
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}

		result.Changed = true
		result.Notification = &domain.Notification{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			TenantID:   order.TenantID,
			Type:       noteType,
			Status:     next,
			Message:    statusMessage(next),
			At:         now,
		}
		result.Order, err = hydrate(ctx, tx, *order)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if !result.Changed {
		log.Info("order transition skipped",
			zap.String("order_id", req.OrderID),
			zap.String("expected", string(req.ExpectedStatus)),
			zap.String("current", string(result.Order.Status)))
		return result, nil
	}
	log.Info("order advanced",
		zap.String("order_id", result.Order.ID),
		zap.String("status", string(result.Order.Status)),
		zap.String("actor_id", actor.UserID))
	m.enqueue(ctx, log, *result.Notification)
	return result, nil
}

// capture settles an unpaid order. Cash capture records what staff counted.
func capture(ctx context.Context, tx store.Tx, order *domain.Order, f flow, tendered int64, now time.Time) error {
	payment := domain.Payment{
		ID:      xid.New("pay"),
		OrderID: order.ID,
		Method:  order.PaymentMethod,
		Amount:  order.Total,
		PaidAt:  now,
	}
	if f.tender {
		if tendered < order.Total {
			return fmt.Errorf("%w: tendered %d, total %d", ErrInsufficientCash, tendered, order.Total)
		}
		change := tendered - order.Total
		payment.Tendered = &tendered
		payment.Change = &change
	}
	if err := tx.UpsertPayment(ctx, payment); err != nil {
		return fmt.Errorf("record payment for %s: %w", order.ID, err)
	}
	order.PaymentStatus = domain.PaymentPaid
	return nil
}

// Cancel voids a non-terminal order: stock goes back on the shelf and any
// captured payment is removed so the sale drops out of revenue.
func (m *Machine) Cancel(ctx context.Context, req CancelRequest) (Result, error) {
	actor, tenantID, err := callerOf(ctx)
	if err != nil {
		return Result{}, err
	}
	log := requestctx.Logger(ctx, m.logger)

	var result Result
	err = m.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := lockOrder(ctx, tx, tenantID, req.OrderID, true)
		if err != nil {
			return err
		}
		switch order.Status {
		case domain.StatusCancelled:
			result.Order, err = hydrate(ctx, tx, *order)
			return err
		case domain.StatusCompleted:
			return fmt.Errorf("%w: order %s is already completed", ErrInvalidTransition, order.ID)
		}

		items, err := tx.ListOrderItems(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("load items for %s: %w", order.ID, err)
		}
		for _, item := range items {
			if _, err := tx.AdjustProductStock(ctx, item.ProductID, item.Quantity, false); err != nil {
				return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
			}
		}
		if order.PaymentStatus == domain.PaymentPaid {
			if err := tx.DeletePayment(ctx, order.ID); err != nil {
				return fmt.Errorf("reverse payment for %s: %w", order.ID, err)
			}
			order.PaymentStatus = domain.PaymentUnpaid
		}

		now := m.now()
		order.Status = domain.StatusCancelled
		order.CancelReason = strings.TrimSpace(req.Reason)
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}

		message := statusMessage(domain.StatusCancelled)
		if order.CancelReason != "" {
			message += ": " + order.CancelReason
		}
		result.Changed = true
		result.Notification = &domain.Notification{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			TenantID:   order.TenantID,
			Type:       domain.NotifyCancelled,
			Status:     domain.StatusCancelled,
			Message:    message,
			At:         now,
		}
		result.Order, err = hydrate(ctx, tx, *order)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if result.Changed {
		log.Info("order cancelled",
			zap.String("order_id", result.Order.ID),
			zap.String("actor_id", actor.UserID),
			zap.String("reason", result.Order.CancelReason))
		m.enqueue(ctx, log, *result.Notification)
	}
	return result, nil
}

func (m *Machine) enqueue(ctx context.Context, log *zap.Logger, note domain.Notification) {
	if err := m.notifier.Enqueue(ctx, note); err != nil {
		log.Warn("notification enqueue failed",
			zap.String("order_id", note.OrderID),
			zap.String("type", string(note.Type)),
			zap.Error(err))
	}
}

func callerOf(ctx context.Context) (domain.Actor, string, error) {
	actor, ok := requestctx.Actor(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, "", ErrMissingActor
	}
	tenantID, ok := requestctx.Tenant(ctx)
	if !ok {
		return domain.Actor{}, "", ErrMissingActor
	}
	return actor, tenantID, nil
}

// lockOrder loads an order in the caller's tenant. Orders of other tenants
// are reported as missing.
func lockOrder(ctx context.Context, tx store.Tx, tenantID string, orderID string, forUpdate bool) (*domain.Order, error) {
	var (
		order *domain.Order
		err   error
	)
	if forUpdate {
		order, err = tx.GetOrderForUpdate(ctx, orderID)
	} else {
		order, err = tx.GetOrder(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	if order.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return order, nil
}

func hydrate(ctx context.Context, tx store.Tx, order domain.Order) (domain.Order, error) {
	items, err := tx.ListOrderItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	payment, err := tx.GetPayment(ctx, order.ID)
	switch {
	case err == nil:
		order.Payment = payment
	case errors.Is(err, store.ErrNotFound):
		order.Payment = nil
	default:
		return domain.Order{}, err
	}
	return order, nil
}
