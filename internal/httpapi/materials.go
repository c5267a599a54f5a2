package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/inventory"
	"kedaipos/backend/internal/store"
)

func (a *API) handleListBatches(w http.ResponseWriter, r *http.Request) {
	includeExhausted, _ := strconv.ParseBool(r.URL.Query().Get("include_exhausted"))
	batches, err := a.inventory.ListBatches(r.Context(), r.PathValue("id"), includeExhausted)
	if err != nil {
		a.writeInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleReceiveBatch(w http.ResponseWriter, r *http.Request) {
	var req inventory.ReceiveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req.MaterialID = r.PathValue("id")

	batch, err := a.inventory.ReceiveBatch(r.Context(), req)
	if err != nil {
		a.writeInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (a *API) handleMaterialStock(w http.ResponseWriter, r *http.Request) {
	summary, err := a.inventory.MaterialStock(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type deductRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

func (a *API) handleManualDeduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := a.inventory.ManualDeduct(r.Context(), r.PathValue("id"), req.Quantity)
	if err != nil {
		a.writeInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	var patch inventory.BatchPatch
	if err := decodeJSON(r, &patch); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	batch, err := a.inventory.UpdateBatch(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		a.writeInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := a.inventory.DeleteBatch(r.Context(), r.PathValue("id")); err != nil {
		a.writeInventoryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) writeInventoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, inventory.ErrInvalidBatch):
		a.writeError(w, r, http.StatusBadRequest, err)
	default:
		a.writeError(w, r, http.StatusInternalServerError, err)
	}
}
