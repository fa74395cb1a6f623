// Package service реализует бизнес-логику книжного магазина: оформление заказов,
// выдачу заказов по коду, скидки за достижение порога заказов и уведомления участников.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
)

// Ошибки бизнес-логики.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidBook        = errors.New("invalid book")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidClaimCode   = errors.New("invalid claim code")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrInvalidStatus      = errors.New("invalid order status")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	SetUserRole(ctx context.Context, userID int64, role model.Role) error

	CreateBook(ctx context.Context, b model.Book) (int64, error)
	ListBooks(ctx context.Context) ([]model.Book, error)

	CreateOrder(ctx context.Context, memberID int64, lines []model.CartLine, claimCode string, price repository.PriceFunc) (*model.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	ListOrdersByMember(ctx context.Context, memberID int64) ([]model.Order, error)
	ListOrdersByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]model.Order, error)
	GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]model.StatusLogEntry, error)
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, staffID int64, check repository.OrderCheck) (*model.Order, int, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus, staffID int64, check repository.OrderCheck) (*model.Order, model.OrderStatus, error)

	CreateMilestoneDiscount(ctx context.Context, d *model.MilestoneDiscount) (bool, error)
	ListDiscountsByMember(ctx context.Context, memberID int64) ([]model.MilestoneDiscount, error)

	CreateNotification(ctx context.Context, n *model.Notification) error
	MarkNotificationDelivered(ctx context.Context, id uuid.UUID) error
	MarkNotificationRead(ctx context.Context, memberID int64, id uuid.UUID) error
	ListNotificationsByMember(ctx context.Context, memberID int64) ([]model.Notification, error)
	ListUndeliveredNotifications(ctx context.Context, since, before time.Time, limit int) ([]model.Notification, error)
}

// Pusher доставляет уведомление в живое соединение участника.
type Pusher interface {
	Push(ctx context.Context, n model.Notification) error
}

// MilestonePolicy задаёт порог подтверждённых заказов и размер скидки за него.
type MilestonePolicy struct {
	Threshold  int
	Percentage int
}

// DefaultMilestonePolicy даёт скидку 10% за десятый подтверждённый заказ.
var DefaultMilestonePolicy = MilestonePolicy{Threshold: 10, Percentage: 10}

// Service содержит бизнес-логику книжного магазина.
type Service struct {
	repo      Repository
	pusher    Pusher
	logger    *zap.Logger
	milestone MilestonePolicy

	redeliveryGrace time.Duration
}

// NewService создаёт сервис. pusher может быть nil, тогда уведомления только сохраняются.
func NewService(repo Repository, pusher Pusher, logger *zap.Logger, policy MilestonePolicy) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Threshold <= 0 {
		policy.Threshold = DefaultMilestonePolicy.Threshold
	}
	if policy.Percentage <= 0 {
		policy.Percentage = DefaultMilestonePolicy.Percentage
	}

	return &Service{
		repo:      repo,
		pusher:    pusher,
		logger:    logger,
		milestone: policy,

		redeliveryGrace: defaultRedeliveryGrace,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового участника.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	id, err := s.repo.CreateUser(ctx, login, hashPassword(login, password), model.RoleMember)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль и возвращает идентификатор и роль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, model.Role, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, "", ErrInvalidCredentials
		}
		return 0, "", err
	}

	if subtle.ConstantTimeCompare(hashPassword(login, password), u.PasswordHash) != 1 {
		return 0, "", ErrInvalidCredentials
	}

	return u.ID, u.Role, nil
}

// EnsureAdmin создаёт администратора, если пользователя с таким логином ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, login, password string) error {
	if login == "" || password == "" {
		return nil
	}

	_, err := s.repo.CreateUser(ctx, login, hashPassword(login, password), model.RoleAdmin)
	if err != nil && !errors.Is(err, repository.ErrUserExists) {
		return err
	}
	return nil
}

// SetUserRole меняет роль пользователя.
func (s *Service) SetUserRole(ctx context.Context, userID int64, role string) error {
	r := model.Role(strings.ToLower(role))
	if !r.Valid() {
		return ErrInvalidRole
	}
	return s.repo.SetUserRole(ctx, userID, r)
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateBook добавляет книгу в каталог.
func (s *Service) CreateBook(ctx context.Context, b model.Book) (int64, error) {
	if strings.TrimSpace(b.Title) == "" || b.Price.IsNegative() || b.Stock < 0 {
		return 0, ErrInvalidBook
	}
	return s.repo.CreateBook(ctx, b)
}

// ListBooks возвращает каталог книг.
func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListBooks(ctx)
}
