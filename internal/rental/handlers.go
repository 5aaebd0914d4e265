package rental

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// Handler exposes rental lifecycle endpoints.
type Handler struct {
	Svc *Service
}

type rentalView struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	CustomerID    string     `json:"customerId"`
	Quantity      int32      `json:"quantity"`
	PriceCents    int64      `json:"priceCents"`
	RentalDate    time.Time  `json:"rentalDate"`
	DueDate       time.Time  `json:"dueDate"`
	Returned      bool       `json:"returned"`
	ReturnDate    *time.Time `json:"returnDate,omitempty"`
	LateFeeCents  int64      `json:"lateFeeCents"`
}

func viewOf(r db.Rental) rentalView {
	return rentalView{
		ID:            common.UUIDString(r.ID),
		TransactionID: common.UUIDString(r.TransactionID),
		CustomerID:    r.CustomerID,
		Quantity:      r.Quantity,
		PriceCents:    r.PriceCents,
		RentalDate:    r.RentalDate,
		DueDate:       r.DueDate,
		Returned:      r.Returned,
		ReturnDate:    r.ReturnDate,
		LateFeeCents:  r.LateFeeCents,
	}
}

// List serves active rentals, or only overdue ones with ?status=overdue.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var (
		rows []db.Rental
		err  error
	)
	switch r.URL.Query().Get("status") {
	case "overdue":
		rows, err = h.Svc.ListOverdue(r.Context())
	default:
		rows, err = h.Svc.ListActive(r.Context())
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to list rentals", nil)
		return
	}
	views := make([]rentalView, 0, len(rows))
	for _, row := range rows {
		views = append(views, viewOf(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// Return checks a rental back in.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := common.ToUUID(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid rental id", nil)
		return
	}
	receipt, err := h.Svc.Return(r.Context(), id)
	if err != nil {
		renderRentalError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"rental":       viewOf(receipt.Rental),
		"lateDays":     receipt.Days,
		"lateFeeCents": receipt.LateFee,
	}})
}

type extendInput struct {
	Days int `json:"days"`
}

// Extend pushes the due date out.
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	id, err := common.ToUUID(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid rental id", nil)
		return
	}
	var in extendInput
	if err := common.DecodeJSON(r.Body, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", err.Error())
		return
	}
	if in.Days <= 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "days must be positive", nil)
		return
	}
	row, err := h.Svc.Extend(r.Context(), id, in.Days)
	if err != nil {
		renderRentalError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": viewOf(row)})
}

func renderRentalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "rental not found", nil)
	case errors.Is(err, ErrAlreadyReturned):
		common.JSONError(w, http.StatusConflict, common.CodeAlreadyReturned, "rental already returned", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "rental operation failed", nil)
	}
}
