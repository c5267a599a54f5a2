package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/requestctx"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

var ErrInvalidBatch = errors.New("invalid batch")

// Engine is the administrative surface over material batches. Sales deduct
// through Deduct inside their own transaction instead.
type Engine struct {
	repo   store.Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(repo store.Repository, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type ReceiveRequest struct {
	MaterialID  string          `json:"material_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	ReceivedAt  *time.Time      `json:"received_at,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

type BatchPatch struct {
	QuantityRemaining *decimal.Decimal `json:"quantity_remaining,omitempty"`
	CostPerUnit       *decimal.Decimal `json:"cost_per_unit,omitempty"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	ClearExpiry       bool             `json:"clear_expiry,omitempty"`
}

func (e *Engine) ReceiveBatch(ctx context.Context, req ReceiveRequest) (domain.MaterialBatch, error) {
	if !req.Quantity.IsPositive() {
		return domain.MaterialBatch{}, ErrInvalidQuantity
	}
	if req.CostPerUnit.IsNegative() {
		return domain.MaterialBatch{}, fmt.Errorf("%w: cost per unit must not be negative", ErrInvalidBatch)
	}

	now := e.now()
	batch := domain.MaterialBatch{
		ID:                xid.New("bat"),
		MaterialID:        req.MaterialID,
		QuantityReceived:  req.Quantity,
		QuantityRemaining: req.Quantity,
		CostPerUnit:       req.CostPerUnit,
		ReceivedAt:        now,
		ExpiresAt:         req.ExpiresAt,
	}
	if req.ReceivedAt != nil {
		batch.ReceivedAt = req.ReceivedAt.UTC()
	}
	if batch.ExpiresAt != nil && batch.ExpiresAt.Before(batch.ReceivedAt) {
		return domain.MaterialBatch{}, fmt.Errorf("%w: expires before it was received", ErrInvalidBatch)
	}

	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.material(ctx, tx, req.MaterialID); err != nil {
			return err
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return err
		}
		return tx.UpdateMaterialCost(ctx, req.MaterialID, req.CostPerUnit)
	})
	if err != nil {
		return domain.MaterialBatch{}, err
	}

	e.log(ctx).Info("material batch received",
		zap.String("material_id", batch.MaterialID),
		zap.String("batch_id", batch.ID),
		zap.String("quantity", batch.QuantityReceived.String()))
	return batch, nil
}

// UpdateBatch applies a manual correction. The exhausted flag always follows the remaining quantity.
func (e *Engine) UpdateBatch(ctx context.Context, batchID string, patch BatchPatch) (domain.MaterialBatch, error) {
	var updated domain.MaterialBatch
	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batch, err := e.batch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if patch.QuantityRemaining != nil {
			if patch.QuantityRemaining.IsNegative() {
				return fmt.Errorf("%w: remaining quantity must not be negative", ErrInvalidBatch)
			}
			batch.QuantityRemaining = *patch.QuantityRemaining
		}
		if patch.CostPerUnit != nil {
			if patch.CostPerUnit.IsNegative() {
				return fmt.Errorf("%w: cost per unit must not be negative", ErrInvalidBatch)
			}
			batch.CostPerUnit = *patch.CostPerUnit
		}
		if patch.ClearExpiry {
			batch.ExpiresAt = nil
		} else if patch.ExpiresAt != nil {
			expires := patch.ExpiresAt.UTC()
			batch.ExpiresAt = &expires
		}
		batch.Exhausted = batch.QuantityRemaining.IsZero()
		if err := tx.UpdateBatch(ctx, *batch); err != nil {
			return err
		}
		updated = *batch
		return nil
	})
	if err != nil {
		return domain.MaterialBatch{}, err
	}

	e.log(ctx).Info("material batch corrected",
		zap.String("batch_id", updated.ID),
		zap.String("remaining", updated.QuantityRemaining.String()),
		zap.Bool("exhausted", updated.Exhausted))
	return updated, nil
}

func (e *Engine) DeleteBatch(ctx context.Context, batchID string) error {
	return e.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.batch(ctx, tx, batchID); err != nil {
			return err
		}
		return tx.DeleteBatch(ctx, batchID)
	})
}

// ListBatches returns a material's batches in the order a sale would consume them.
func (e *Engine) ListBatches(ctx context.Context, materialID string, includeExhausted bool) ([]domain.MaterialBatch, error) {
	var batches []domain.MaterialBatch
	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.material(ctx, tx, materialID); err != nil {
			return err
		}
		var err error
		batches, err = tx.ListBatches(ctx, materialID, includeExhausted)
		return err
	})
	if err != nil {
		return nil, err
	}
	SortFEFO(batches)
	return batches, nil
}

// MaterialStock sums the remaining quantity over non-exhausted batches.
func (e *Engine) MaterialStock(ctx context.Context, materialID string) (domain.MaterialStock, error) {
	var summary domain.MaterialStock
	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		material, err := e.material(ctx, tx, materialID)
		if err != nil {
			return err
		}
		batches, err := tx.ListBatches(ctx, materialID, false)
		if err != nil {
			return err
		}
		summary = domain.MaterialStock{Material: *material, Quantity: decimal.Zero}
		for _, batch := range batches {
			summary.Quantity = summary.Quantity.Add(batch.QuantityRemaining)
			summary.OpenBatches++
		}
		summary.BelowMin = summary.Quantity.LessThan(material.MinStockLevel)
		return nil
	})
	return summary, err
}

// ManualDeduct records consumption outside a sale, e.g. spillage or a stock-take correction.
func (e *Engine) ManualDeduct(ctx context.Context, materialID string, qty decimal.Decimal) (Deduction, error) {
	var result Deduction
	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.material(ctx, tx, materialID); err != nil {
			return err
		}
		var err error
		result, err = Deduct(ctx, tx, materialID, qty)
		return err
	})
	if err != nil {
		return Deduction{}, err
	}

	log := e.log(ctx).With(zap.String("material_id", materialID), zap.String("requested", qty.String()))
	if !result.Satisfied() {
		log.Warn("manual deduction short", zap.String("shortfall", result.Shortfall.String()))
	} else {
		log.Info("manual deduction recorded", zap.Int("batches", len(result.Consumed)))
	}
	return result, nil
}

func (e *Engine) material(ctx context.Context, tx store.Tx, materialID string) (*domain.RawMaterial, error) {
	material, err := tx.GetRawMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if tenantID, ok := requestctx.Tenant(ctx); ok && material.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return material, nil
}

func (e *Engine) batch(ctx context.Context, tx store.Tx, batchID string) (*domain.MaterialBatch, error) {
	batch, err := tx.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if _, err := e.material(ctx, tx, batch.MaterialID); err != nil {
		return nil, err
	}
	return batch, nil
}

func (e *Engine) log(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx, e.logger)
}
