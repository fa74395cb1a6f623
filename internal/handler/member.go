package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/model"
)

type checkoutRequest struct {
	Items []struct {
		BookID   int64 `json:"bookId"`
		Quantity int   `json:"quantity"`
	} `json:"items"`
}

type orderItemResponse struct {
	BookID    int64           `json:"bookId"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	MemberID       int64               `json:"memberId"`
	Status         string              `json:"status"`
	ClaimCode      string              `json:"claimCode,omitempty"`
	Items          []orderItemResponse `json:"items,omitempty"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	DiscountAmount decimal.Decimal     `json:"discountAmount"`
	TotalAmount    decimal.Decimal     `json:"totalAmount"`
	ProcessedBy    *int64              `json:"processedBy,omitempty"`
	OrderedAt      string              `json:"orderedAt"`
}

// newOrderResponse собирает ответ по заказу. Код выдачи показывается только владельцу.
func newOrderResponse(o *model.Order, withCode bool) orderResponse {
	resp := orderResponse{
		ID:             o.ID.String(),
		MemberID:       o.MemberID,
		Status:         string(o.Status),
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		TotalAmount:    o.TotalAmount,
		ProcessedBy:    o.ProcessedBy,
		OrderedAt:      o.OrderedAt.Format(time.RFC3339),
	}
	if withCode {
		resp.ClaimCode = o.ClaimCode
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			BookID:    it.BookID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return resp
}

// Checkout оформляет заказ текущего участника.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lines := make([]model.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, model.CartLine{BookID: it.BookID, Quantity: it.Quantity})
	}

	order, err := h.service.Checkout(r.Context(), userID, lines)
	if err != nil {
		h.fail(w, err, "checkout error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newOrderResponse(order, true))
}

// GetOrders возвращает заказы текущего участника.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListMemberOrders(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "get orders error", zap.Int64("userID", userID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i], true))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает один заказ текущего участника.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orderID, ok := parseUUIDParam(w, chi.URLParam(r, "orderId"))
	if !ok {
		return
	}

	order, err := h.service.GetMemberOrder(r.Context(), userID, orderID)
	if err != nil {
		h.fail(w, err, "get order error", zap.Int64("userID", userID), zap.String("order", orderID.String()))
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(order, true))
}

type notificationResponse struct {
	ID        string  `json:"id"`
	OrderID   *string `json:"orderId,omitempty"`
	Message   string  `json:"message"`
	Type      string  `json:"type"`
	IsRead    bool    `json:"isRead"`
	CreatedAt string  `json:"createdAt"`
}

// GetNotifications возвращает уведомления текущего участника.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListNotifications(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "get notifications error", zap.Int64("userID", userID))
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		item := notificationResponse{
			ID:        n.ID.String(),
			Message:   n.Message,
			Type:      string(n.Type),
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		}
		if n.OrderID != nil {
			s := n.OrderID.String()
			item.OrderID = &s
		}
		resp = append(resp, item)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// MarkNotificationRead отмечает уведомление прочитанным.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, ok := parseUUIDParam(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.MarkNotificationRead(r.Context(), userID, id); err != nil {
		h.fail(w, err, "mark notification read error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type discountResponse struct {
	Milestone  int    `json:"milestone"`
	Percentage int    `json:"percentage"`
	Stackable  bool   `json:"stackable"`
	Active     bool   `json:"active"`
	AppliedAt  string `json:"appliedAt"`
}

// GetDiscounts возвращает скидки текущего участника.
func (h *Handler) GetDiscounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListDiscounts(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "get discounts error", zap.Int64("userID", userID))
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]discountResponse, 0, len(list))
	for _, d := range list {
		resp = append(resp, discountResponse{
			Milestone:  d.Milestone,
			Percentage: d.Percentage,
			Stackable:  d.Stackable,
			Active:     d.Active,
			AppliedAt:  d.AppliedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
