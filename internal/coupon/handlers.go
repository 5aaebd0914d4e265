package coupon

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// Handler exposes coupon preview and administration endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type previewInput struct {
	Code          string `json:"code" validate:"required"`
	SubtotalCents int64  `json:"subtotalCents" validate:"gte=0"`
}

// Preview validates a code against a hypothetical subtotal and reports the
// discount without consuming a use.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var in previewInput
	if err := common.DecodeJSON(r.Body, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", err.Error())
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid preview payload", err.Error())
			return
		}
	}
	ev, err := h.Svc.Preview(r.Context(), in.Code, in.SubtotalCents)
	if err != nil {
		renderCouponError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"code":          ev.Coupon.Code,
		"discountCents": ev.Discount,
	}})
}

type createInput struct {
	Code             string     `json:"code" validate:"required"`
	Description      *string    `json:"description"`
	PercentBps       *int32     `json:"percentBps" validate:"omitempty,gt=0,lte=10000"`
	AmountCents      *int64     `json:"amountCents" validate:"omitempty,gt=0"`
	MinPurchaseCents int64      `json:"minPurchaseCents" validate:"gte=0"`
	MaxUses          *int32     `json:"maxUses" validate:"omitempty,gt=0"`
	ExpiresAt        *time.Time `json:"expiresAt"`
}

// Create registers a coupon. Percent and flat amounts are mutually
// exclusive.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in createInput
	if err := common.DecodeJSON(r.Body, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", err.Error())
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid coupon payload", err.Error())
			return
		}
	}
	if (in.PercentBps == nil) == (in.AmountCents == nil) {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "exactly one of percentBps or amountCents is required", nil)
		return
	}
	created, err := h.Svc.Create(r.Context(), CreateParams{
		Code:        in.Code,
		Description: in.Description,
		PercentBps:  in.PercentBps,
		AmountCents: in.AmountCents,
		MinPurchase: in.MinPurchaseCents,
		MaxUses:     in.MaxUses,
		ExpiresAt:   in.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			common.JSONError(w, http.StatusConflict, common.CodeDuplicate, "coupon code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to create coupon", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"code":      created.Code,
		"createdAt": created.CreatedAt,
	}})
}

func renderCouponError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeCouponNotFound, "coupon not found", nil)
	case errors.Is(err, ErrInactive):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeCouponInactive, "coupon is not active", nil)
	case errors.Is(err, ErrExpired):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeCouponExpired, "coupon has expired", nil)
	case errors.Is(err, ErrExhausted):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeCouponExhausted, "coupon usage limit reached", nil)
	case errors.Is(err, ErrMinimumNotMet):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeCouponMinimum, "purchase does not meet the coupon minimum", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "coupon lookup failed", nil)
	}
}
