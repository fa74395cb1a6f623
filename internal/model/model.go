// Package model содержит доменные сущности книжного магазина.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// Valid сообщает, является ли значение известной ролью.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя магазина.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Book описывает позицию каталога, нужную для оформления заказа.
type Book struct {
	ID     int64           `json:"id"`
	Title  string          `json:"title"`
	Author string          `json:"author"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
}

// OrderStatus описывает статус заказа на выдачу в магазине.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// ParseOrderStatus возвращает статус заказа по его строковому представлению без учёта регистра.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled} {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// OrderItem описывает строку заказа со снимком цены на момент покупки.
type OrderItem struct {
	BookID    int64
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order описывает заказ участника.
type Order struct {
	ID             uuid.UUID
	MemberID       int64
	Items          []OrderItem
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	ClaimCode      string
	Status         OrderStatus
	OrderedAt      time.Time
	ProcessedBy    *int64
	UpdatedAt      time.Time
}

// StatusLogEntry описывает одну смену статуса заказа.
type StatusLogEntry struct {
	Status    OrderStatus
	ChangedBy int64
	ChangedAt time.Time
	Note      string
}

// MilestoneDiscount описывает скидку, выданную за достижение порога подтверждённых заказов.
type MilestoneDiscount struct {
	ID         uuid.UUID
	MemberID   int64
	Milestone  int
	Percentage int
	Stackable  bool
	Active     bool
	AppliedAt  time.Time
}

// NotificationType задаёт категорию уведомления.
type NotificationType string

const (
	NotificationDiscountAlert NotificationType = "Discount Alert"
	NotificationOrderUpdate   NotificationType = "Order Update"
)

// Notification описывает уведомление участника.
type Notification struct {
	ID          uuid.UUID
	MemberID    int64
	OrderID     *uuid.UUID
	Message     string
	Type        NotificationType
	CreatedAt   time.Time
	IsRead      bool
	DeliveredAt *time.Time
}

// CartLine описывает позицию корзины, передаваемую при оформлении заказа.
type CartLine struct {
	BookID   int64
	Quantity int
}
