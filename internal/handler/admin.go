package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/model"
)

type bookRequest struct {
	Title  string          `json:"title"`
	Author string          `json:"author"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
}

// CreateBook добавляет книгу в каталог.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b := model.Book{Title: req.Title, Author: req.Author, Price: req.Price, Stock: req.Stock}
	id, err := h.service.CreateBook(r.Context(), b)
	if err != nil {
		h.fail(w, err, "create book error")
		return
	}

	b.ID = id
	h.writeJSON(w, http.StatusCreated, b)
}

type roleRequest struct {
	Role string `json:"role"`
}

// SetUserRole меняет роль пользователя.
func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetUserRole(r.Context(), userID, req.Role); err != nil {
		h.fail(w, err, "set user role error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusOK)
}
