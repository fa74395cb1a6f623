package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type processRequest struct {
	ClaimCode string `json:"claimCode"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type messageResponse struct {
	Message string        `json:"message"`
	Order   orderResponse `json:"order"`
}

// ProcessOrder выдаёт заказ по коду выдачи.
func (h *Handler) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	staffID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orderID, ok := parseUUIDParam(w, chi.URLParam(r, "orderId"))
	if !ok {
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.ProcessOrder(r.Context(), orderID, req.ClaimCode, staffID)
	if err != nil {
		h.fail(w, err, "process order error", zap.String("order", orderID.String()), zap.Int64("staffID", staffID))
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{
		Message: "Order processed successfully",
		Order:   newOrderResponse(order, false),
	})
}

// UpdateStatus устанавливает статус заказа без кода выдачи.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	staffID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orderID, ok := parseUUIDParam(w, chi.URLParam(r, "orderId"))
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), orderID, req.Status, staffID)
	if err != nil {
		h.fail(w, err, "update order status error", zap.String("order", orderID.String()), zap.Int64("staffID", staffID))
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{
		Message: "Order status updated",
		Order:   newOrderResponse(order, false),
	})
}

// ListOrders возвращает заказы для сотрудников с фильтром по статусу.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, err, "list orders error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i], false))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	Status    string `json:"status"`
	ChangedBy int64  `json:"changedBy"`
	ChangedAt string `json:"changedAt"`
	Note      string `json:"note,omitempty"`
}

// GetOrderHistory возвращает журнал статусов заказа.
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, chi.URLParam(r, "orderId"))
	if !ok {
		return
	}

	entries, err := h.service.GetOrderHistory(r.Context(), orderID)
	if err != nil {
		h.fail(w, err, "order history error", zap.String("order", orderID.String()))
		return
	}

	resp := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyResponse{
			Status:    string(e.Status),
			ChangedBy: e.ChangedBy,
			ChangedAt: e.ChangedAt.Format(time.RFC3339),
			Note:      e.Note,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
