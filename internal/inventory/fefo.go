package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
)

var ErrInvalidQuantity = errors.New("quantity must be positive")

// BatchStore is what a deduction needs from the surrounding transaction.
type BatchStore interface {
	GetRawMaterial(ctx context.Context, id string) (*domain.RawMaterial, error)
	LockOpenBatches(ctx context.Context, materialID string) ([]domain.MaterialBatch, error)
	UpdateBatch(ctx context.Context, batch domain.MaterialBatch) error
}

type BatchConsumption struct {
	BatchID   string          `json:"batch_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Remaining decimal.Decimal `json:"remaining"`
	Exhausted bool            `json:"exhausted"`
}

type Deduction struct {
	MaterialID string             `json:"material_id"`
	Requested  decimal.Decimal    `json:"requested"`
	Consumed   []BatchConsumption `json:"consumed"`
	Shortfall  decimal.Decimal    `json:"shortfall"`
}

func (d Deduction) Satisfied() bool {
	return !d.Shortfall.IsPositive()
}

// Deduct consumes qty of a material from its open batches, soonest expiry first.
// Running out of batches is not an error: the unmet part is returned as Shortfall.
func Deduct(ctx context.Context, tx BatchStore, materialID string, qty decimal.Decimal) (Deduction, error) {
	result := Deduction{MaterialID: materialID, Requested: qty, Shortfall: decimal.Zero}
	if !qty.IsPositive() {
		return result, ErrInvalidQuantity
	}
	if _, err := tx.GetRawMaterial(ctx, materialID); err != nil {
		return result, fmt.Errorf("material %s: %w", materialID, err)
	}

	batches, err := tx.LockOpenBatches(ctx, materialID)
	if err != nil {
		return result, fmt.Errorf("lock batches for %s: %w", materialID, err)
	}
	SortFEFO(batches)

	needed := qty
	for _, batch := range batches {
		if !needed.IsPositive() {
			break
		}
		if batch.Exhausted || !batch.QuantityRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(batch.QuantityRemaining, needed)
		batch.QuantityRemaining = batch.QuantityRemaining.Sub(take)
		batch.Exhausted = batch.QuantityRemaining.IsZero()
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return result, fmt.Errorf("update batch %s: %w", batch.ID, err)
		}
		needed = needed.Sub(take)
		result.Consumed = append(result.Consumed, BatchConsumption{
			BatchID:   batch.ID,
			Quantity:  take,
			Remaining: batch.QuantityRemaining,
			Exhausted: batch.Exhausted,
		})
	}
	if needed.IsPositive() {
		result.Shortfall = needed
	}
	return result, nil
}

// SortFEFO orders batches for consumption: dated before undated, earlier expiry,
// then earlier receipt.
func SortFEFO(batches []domain.MaterialBatch) {
	slices.SortStableFunc(batches, compareFEFO)
}

func compareFEFO(a, b domain.MaterialBatch) int {
	if a.ExpiresAt == nil && b.ExpiresAt != nil {
		return 1
	}
	if a.ExpiresAt != nil && b.ExpiresAt == nil {
		return -1
	}
	if a.ExpiresAt != nil && b.ExpiresAt != nil {
		if c := a.ExpiresAt.Compare(*b.ExpiresAt); c != 0 {
			return c
		}
	}
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
