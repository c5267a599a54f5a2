package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"kedaipos/backend/internal/checkout"
	"kedaipos/backend/internal/fulfillment"
	"kedaipos/backend/internal/requestctx"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/voucher"
)

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	receipt, err := a.checkout.Commit(r.Context(), req)
	if err != nil {
		a.writeCommitError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) writeCommitError(w http.ResponseWriter, r *http.Request, err error) {
	var commitErr *checkout.CommitError
	if !errors.As(err, &commitErr) {
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	switch commitErr.Kind {
	case checkout.KindInvalidCart:
		a.writeError(w, r, http.StatusBadRequest, commitErr)
	case checkout.KindVoucherRejected, checkout.KindInsufficientCash:
		a.writeError(w, r, http.StatusUnprocessableEntity, commitErr)
	case checkout.KindInsufficientStock:
		a.writeError(w, r, http.StatusConflict, commitErr)
	default:
		// Already logged with detail by the engine; the client only sees the generic message.
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": commitErr.Error()})
	}
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	var req fulfillment.AdvanceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req.OrderID = r.PathValue("id")

	result, err := a.orders.Advance(r.Context(), req)
	if err != nil {
		a.writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req fulfillment.CancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	req.OrderID = r.PathValue("id")

	result, err := a.orders.Cancel(r.Context(), req)
	if err != nil {
		a.writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fulfillment.ErrExpectedStatus):
		a.writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, r, http.StatusNotFound, errors.New("order not found"))
	case errors.Is(err, fulfillment.ErrInvalidTransition):
		a.writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, fulfillment.ErrInsufficientCash):
		a.writeError(w, r, http.StatusUnprocessableEntity, err)
	case errors.Is(err, fulfillment.ErrMissingActor):
		a.writeError(w, r, http.StatusUnauthorized, err)
	default:
		a.writeError(w, r, http.StatusInternalServerError, err)
	}
}

type voucherCheckRequest struct {
	Code            string   `json:"code"`
	Subtotal        int64    `json:"subtotal"`
	ClaimedDiscount int64    `json:"claimed_discount,omitempty"`
	ProductIDs      []string `json:"product_ids,omitempty"`
}

type voucherCheckResponse struct {
	Valid     bool   `json:"valid"`
	VoucherID string `json:"voucher_id,omitempty"`
	Code      string `json:"code"`
	Discount  int64  `json:"discount,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// handleValidateVoucher previews a code against a cart summary. A rejection
// is reported in the body with 422 so clients can show the reason.
func (a *API) handleValidateVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		a.writeError(w, r, http.StatusBadRequest, errors.New("voucher code is required"))
		return
	}
	tenantID, _ := requestctx.Tenant(r.Context())

	res, err := a.vouchers.Preview(r.Context(), a.repo, voucher.Input{
		TenantID:        tenantID,
		Code:            code,
		Subtotal:        req.Subtotal,
		ClaimedDiscount: req.ClaimedDiscount,
		ProductIDs:      req.ProductIDs,
		AnyAmount:       req.ClaimedDiscount == 0,
	})
	if err != nil {
		var rejection *voucher.RejectionError
		if errors.As(err, &rejection) {
			requestctx.Logger(r.Context(), a.logger).Info("voucher preview rejected",
				zap.String("code", code), zap.String("reason", string(rejection.Reason)))
			writeJSON(w, http.StatusUnprocessableEntity, voucherCheckResponse{Code: code, Reason: string(rejection.Reason)})
			return
		}
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, voucherCheckResponse{
		Valid:     true,
		VoucherID: res.Voucher.ID,
		Code:      code,
		Discount:  res.Discount,
	})
}
