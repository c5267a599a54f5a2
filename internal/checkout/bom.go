package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kedaipos/backend/internal/inventory"
	"kedaipos/backend/internal/store"
)

var errMaterialShortfall = errors.New("material shortfall")

type materialNeed struct {
	materialID string
	quantity   decimal.Decimal
}

// expandRecipe flattens a product's bill of materials into one need per
// recipe row, expanding sub-recipes into their ingredients.
func expandRecipe(ctx context.Context, tx store.Tx, productID string, quantity int) ([]materialNeed, error) {
	recipes, err := tx.ListProductRecipes(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load recipe for %s: %w", productID, err)
	}

	units := decimal.NewFromInt(int64(quantity))
	needs := make([]materialNeed, 0, len(recipes))
	for _, recipe := range recipes {
		perLine := recipe.QuantityPerUnit.Mul(units)
		switch {
		case recipe.MaterialID != "" && recipe.SubRecipeID == "":
			needs = append(needs, materialNeed{materialID: recipe.MaterialID, quantity: perLine})
		case recipe.SubRecipeID != "" && recipe.MaterialID == "":
			ingredients, err := tx.ListSubRecipeIngredients(ctx, recipe.SubRecipeID)
			if err != nil {
				return nil, fmt.Errorf("load sub-recipe %s: %w", recipe.SubRecipeID, err)
			}
			for _, ingredient := range ingredients {
				needs = append(needs, materialNeed{
					materialID: ingredient.MaterialID,
					quantity:   ingredient.QuantityPerUnit.Mul(perLine),
				})
			}
		default:
			return nil, fmt.Errorf("recipe %s must reference exactly one material or sub-recipe", recipe.ID)
		}
	}
	return needs, nil
}

// deductMaterials runs one line's raw-material deductions inside a savepoint.
// Under TolerateShortage a failure only undoes that line's deductions and the
// sale goes on; a shortfall keeps what could be taken.
func (r *commitRun) deductMaterials(ctx context.Context, line pricedLine) ([]string, error) {
	policy := r.engine.opts.MaterialPolicy
	var warnings []string

	err := r.tx.Savepoint(ctx, func(ctx context.Context) error {
		needs, err := expandRecipe(ctx, r.tx, line.product.ID, line.quantity)
		if err != nil {
			return err
		}
		for _, need := range needs {
			if !need.quantity.IsPositive() {
				continue
			}
			deduction, err := inventory.Deduct(ctx, r.tx, need.materialID, need.quantity)
			if err != nil {
				return err
			}
			if deduction.Satisfied() {
				continue
			}
			if policy == EnforceMaterials {
				return fmt.Errorf("%w: %s short by %s", errMaterialShortfall, need.materialID, deduction.Shortfall)
			}
			r.log.Warn("material shortfall",
				zap.String("product_id", line.product.ID),
				zap.String("material_id", need.materialID),
				zap.String("requested", need.quantity.String()),
				zap.String("shortfall", deduction.Shortfall.String()))
			warnings = append(warnings, fmt.Sprintf("%s short by %s for %s", need.materialID, deduction.Shortfall, line.product.Name))
		}
		return nil
	})
	if err == nil {
		return warnings, nil
	}

	if policy == EnforceMaterials {
		return nil, &CommitError{
			Kind:   KindInsufficientStock,
			Reason: fmt.Sprintf("not enough ingredients to make %s", line.product.Name),
			Err:    err,
		}
	}
	r.log.Warn("material deduction skipped",
		zap.String("product_id", line.product.ID),
		zap.Int("quantity", line.quantity),
		zap.Error(err))
	return []string{fmt.Sprintf("ingredients for %s were not deducted", line.product.Name)}, nil
}
