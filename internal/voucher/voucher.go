package voucher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

type Reason string

const (
	ReasonNotFound       Reason = "not found"
	ReasonExpired        Reason = "expired"
	ReasonExhausted      Reason = "usage limit reached"
	ReasonBelowMinimum   Reason = "below minimum"
	ReasonAboveMaximum   Reason = "above maximum"
	ReasonNotApplicable  Reason = "not applicable"
	ReasonAmountMismatch Reason = "amount mismatch"
)

var ErrRejected = errors.New("voucher rejected")

// RejectionError carries the first check a voucher failed. It is user-correctable.
type RejectionError struct {
	Code   string
	Reason Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("voucher %q rejected: %s", e.Code, e.Reason)
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// Reader is the slice of the store the validator reads from.
type Reader interface {
	FindVoucherByCode(ctx context.Context, tenantID string, code string) (*domain.Voucher, error)
	FindVoucherCode(ctx context.Context, tenantID string, code string) (*domain.VoucherCode, error)
	GetVoucher(ctx context.Context, id string) (*domain.Voucher, error)
}

type Input struct {
	TenantID        string
	Code            string
	Subtotal        int64
	ClaimedDiscount int64
	ProductIDs      []string
	// AnyAmount skips the claimed discount check for callers that only
	// want to learn the discount, such as a cart preview.
	AnyAmount bool
}

type Result struct {
	Voucher  domain.Voucher
	Code     *domain.VoucherCode
	Discount int64
}

type Validator struct {
	now func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate resolves code to a voucher and runs the redemption checks in order,
// returning the first failure as a *RejectionError.
func (v *Validator) Validate(ctx context.Context, r Reader, in Input) (Result, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	reject := func(reason Reason) (Result, error) {
		return Result{}, &RejectionError{Code: code, Reason: reason}
	}

	var singleUse *domain.VoucherCode
	voucher, lookupErr := r.FindVoucherByCode(ctx, in.TenantID, code)
	if errors.Is(lookupErr, store.ErrNotFound) {
		singleUse, lookupErr = r.FindVoucherCode(ctx, in.TenantID, code)
		if lookupErr == nil {
			voucher, lookupErr = r.GetVoucher(ctx, singleUse.VoucherID)
		}
	}
	if errors.Is(lookupErr, store.ErrNotFound) {
		return reject(ReasonNotFound)
	}
	if lookupErr != nil {
		return Result{}, fmt.Errorf("lookup voucher: %w", lookupErr)
	}

	now := v.now()
	if !voucher.Active ||
		(voucher.ValidFrom != nil && now.Before(*voucher.ValidFrom)) ||
		(voucher.ValidUntil != nil && now.After(*voucher.ValidUntil)) {
		return reject(ReasonExpired)
	}
	if voucher.UsageLimit != nil && voucher.UsedCount >= *voucher.UsageLimit {
		return reject(ReasonExhausted)
	}
	if singleUse != nil && singleUse.Used {
		return reject(ReasonExhausted)
	}
	if in.Subtotal < voucher.MinOrderAmount {
		return reject(ReasonBelowMinimum)
	}
	if voucher.MaxOrderAmount != nil && in.Subtotal > *voucher.MaxOrderAmount {
		return reject(ReasonAboveMaximum)
	}
	if len(voucher.ApplicableProducts) > 0 && !intersects(voucher.ApplicableProducts, in.ProductIDs) {
		return reject(ReasonNotApplicable)
	}
	if !in.AnyAmount && in.ClaimedDiscount != voucher.DiscountAmount {
		return reject(ReasonAmountMismatch)
	}

	return Result{
		Voucher:  *voucher,
		Code:     singleUse,
		Discount: min(voucher.DiscountAmount, in.Subtotal),
	}, nil
}

func intersects(allowed []string, productIDs []string) bool {
	for _, id := range productIDs {
		if slices.Contains(allowed, id) {
			return true
		}
	}
	return false
}

// Preview validates a code against a cart without redeeming it.
func (v *Validator) Preview(ctx context.Context, repo store.Repository, in Input) (Result, error) {
	var res Result
	err := repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = v.Validate(ctx, tx, in)
		return err
	})
	return res, err
}
