package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// Handler exposes item endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20, 100)
	views, total, err := h.Svc.List(r.Context(), page, perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to list items", nil)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	view, err := h.Svc.Get(r.Context(), sku)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "item not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to load item", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateParams
	if err := common.DecodeJSON(r.Body, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request body", err.Error())
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid item payload", err.Error())
			return
		}
	}
	view, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			common.JSONError(w, http.StatusConflict, common.CodeDuplicate, "sku already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to create item", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}
