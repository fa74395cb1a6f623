// Package handler содержит HTTP-обработчики API книжного магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/middleware"
	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, model.Role, error)
	SetUserRole(ctx context.Context, userID int64, role string) error

	CreateBook(ctx context.Context, b model.Book) (int64, error)
	ListBooks(ctx context.Context) ([]model.Book, error)

	Checkout(ctx context.Context, memberID int64, lines []model.CartLine) (*model.Order, error)
	ListMemberOrders(ctx context.Context, memberID int64) ([]model.Order, error)
	GetMemberOrder(ctx context.Context, memberID int64, orderID uuid.UUID) (*model.Order, error)

	ListNotifications(ctx context.Context, memberID int64) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, memberID int64, id uuid.UUID) error
	ListDiscounts(ctx context.Context, memberID int64) ([]model.MilestoneDiscount, error)

	ListOrders(ctx context.Context, status string) ([]model.Order, error)
	GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]model.StatusLogEntry, error)
	ProcessOrder(ctx context.Context, orderID uuid.UUID, code string, staffID int64) (*model.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string, staffID int64) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API книжного магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового участника.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, userID, model.RoleMember); err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и выдачу токена.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, role, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, userID, role); err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListBooks возвращает каталог.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		h.fail(w, err, "list books error")
		return
	}

	if books == nil {
		books = []model.Book{}
	}
	h.writeJSON(w, http.StatusOK, books)
}

// fail переводит ошибку бизнес-логики в HTTP-ответ. Неизвестные ошибки логируются
// и отдаются клиенту как 500 без подробностей.
func (h *Handler) fail(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	switch {
	case service.IsNotFound(err):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidClaimCode):
		http.Error(w, "Invalid claim code", http.StatusBadRequest)
	case errors.Is(err, service.ErrOrderNotPending):
		http.Error(w, "Order is not pending", http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidBook),
		errors.Is(err, service.ErrInvalidRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrInsufficientStock):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

// currentUser достаёт пользователя из контекста; при отсутствии отвечает 401.
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

func parseUUIDParam(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}
