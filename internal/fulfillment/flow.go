package fulfillment

import (
	"fmt"
	"slices"

	"kedaipos/backend/internal/domain"
)

// flow is the status sequence for one family of payment methods. Cash and
// non-cash orders differ only in their steps and where payment is captured,
// so both are described by the same value type.
type flow struct {
	name    string
	steps   []domain.OrderStatus
	capture domain.OrderStatus
	// tender means capture needs cash counted by staff.
	tender bool
}

var (
	cashFlow = flow{
		name: "cash",
		steps: []domain.OrderStatus{
			domain.StatusPending,
			domain.StatusCustomerCashPayment,
			domain.StatusProcessing,
			domain.StatusReady,
			domain.StatusCompleted,
		},
		capture: domain.StatusCustomerCashPayment,
		tender:  true,
	}
	counterFlow = flow{
		name: "non-cash",
		steps: []domain.OrderStatus{
			domain.StatusPending,
			domain.StatusProcessing,
			domain.StatusReady,
			domain.StatusCompleted,
		},
		capture: domain.StatusProcessing,
	}
)

func flowFor(method domain.PaymentMethod) flow {
	if method == domain.PaymentCash {
		return cashFlow
	}
	return counterFlow
}

// next returns the status that follows current in this flow.
func (f flow) next(current domain.OrderStatus) (domain.OrderStatus, error) {
	idx := slices.Index(f.steps, current)
	if idx < 0 {
		return "", fmt.Errorf("%w: %s is not a %s status", ErrInvalidTransition, current, f.name)
	}
	if idx == len(f.steps)-1 {
		return "", fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, current)
	}
	return f.steps[idx+1], nil
}

func statusMessage(status domain.OrderStatus) string {
	switch status {
	case domain.StatusCustomerCashPayment:
		return "Payment received, your order is in the queue"
	case domain.StatusProcessing:
		return "Your order is being prepared"
	case domain.StatusReady:
		return "Your order is ready for pickup"
	case domain.StatusCompleted:
		return "Thank you, your order is complete"
	case domain.StatusCancelled:
		return "Your order was cancelled"
	default:
		return "Your order status changed to " + string(status)
	}
}
