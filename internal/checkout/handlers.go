package checkout

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/coupon"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// Handler exposes transaction endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.DecodeJSON(r.Body, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", err.Error())
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid transaction payload", err.Error())
			return
		}
	}
	receipt, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.RenderError(w, mapDomainError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": receipt})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	receipt, err := h.Svc.Get(r.Context(), number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "transaction not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to load transaction", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": receipt})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20, 100)
	arg := db.ListTransactionsParams{
		Type:       r.URL.Query().Get("type"),
		EmployeeID: r.URL.Query().Get("employeeId"),
		Limit:      int32(perPage),
		Offset:     int32((page - 1) * perPage),
	}
	if from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from")); err == nil {
		arg.From = &from
	}
	if to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to")); err == nil {
		arg.To = &to
	}
	receipts, err := h.Svc.List(r.Context(), arg)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to list transactions", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": receipts,
		"pagination": common.Pagination{
			Page:    page,
			PerPage: perPage,
		},
	})
}

func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "day must be YYYY-MM-DD", nil)
			return
		}
		day = parsed
	}
	report, err := h.Svc.Report(r.Context(), day)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to build report", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

// mapDomainError folds sentinel errors from the orchestrated packages into
// AppErrors with stable codes and statuses.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyCart) || errors.Is(err, pricing.ErrEmptyCart):
		return common.NewAppError(common.CodeEmptyCart, "cart is empty", http.StatusBadRequest, err)
	case errors.Is(err, pricing.ErrInvalidQuantity):
		return common.NewAppError(common.CodeInvalidQuantity, "quantities must be positive", http.StatusBadRequest, err)
	case errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidPayment),
		errors.Is(err, ErrCustomerRequired), errors.Is(err, ErrNotRentable):
		return common.NewAppError(common.CodeValidation, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, pricing.ErrInsufficientPayment):
		return common.NewAppError(common.CodeInsufficientPay, "tendered amount does not cover the total", http.StatusBadRequest, err)
	case errors.Is(err, inventory.ErrItemUnavailable):
		return common.NewAppError(common.CodeItemUnavailable, err.Error(), http.StatusNotFound, err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		return common.NewAppError(common.CodeInsufficientStock, err.Error(), http.StatusConflict, err)
	case errors.Is(err, coupon.ErrNotFound):
		return common.NewAppError(common.CodeCouponNotFound, "coupon not found", http.StatusNotFound, err)
	case errors.Is(err, coupon.ErrInactive):
		return common.NewAppError(common.CodeCouponInactive, "coupon is not active", http.StatusUnprocessableEntity, err)
	case errors.Is(err, coupon.ErrExpired):
		return common.NewAppError(common.CodeCouponExpired, "coupon has expired", http.StatusUnprocessableEntity, err)
	case errors.Is(err, coupon.ErrExhausted):
		return common.NewAppError(common.CodeCouponExhausted, "coupon usage limit reached", http.StatusUnprocessableEntity, err)
	case errors.Is(err, coupon.ErrMinimumNotMet):
		return common.NewAppError(common.CodeCouponMinimum, "purchase does not meet the coupon minimum", http.StatusUnprocessableEntity, err)
	case errors.Is(err, db.ErrDuplicate):
		return common.NewAppError(common.CodeDuplicate, "duplicate transaction", http.StatusConflict, err)
	case errors.Is(err, db.ErrConflict):
		return common.NewAppError(common.CodeConflict, "transaction conflicted, retry", http.StatusConflict, err)
	default:
		return err
	}
}
