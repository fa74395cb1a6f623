package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bookstore/internal/claimcode"
	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// Checkout оформляет заказ участника на выдачу в магазине. Код выдачи генерируется
// один раз здесь и больше не меняется.
func (s *Service) Checkout(ctx context.Context, memberID int64, lines []model.CartLine) (*model.Order, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	code, err := claimcode.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate claim code: %w", err)
	}

	return s.repo.CreateOrder(ctx, memberID, merged, code, priceOrder)
}

// mergeLines объединяет позиции одной книги и упорядочивает их по идентификатору,
// чтобы строки книг блокировались в одном порядке.
func mergeLines(lines []model.CartLine) ([]model.CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	qty := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		qty[l.BookID] += l.Quantity
	}

	merged := make([]model.CartLine, 0, len(qty))
	for id, q := range qty {
		merged = append(merged, model.CartLine{BookID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].BookID < merged[j].BookID })

	return merged, nil
}

// priceOrder суммирует позиции и применяет суммарный процент скидок (не больше 100).
func priceOrder(items []model.OrderItem, discountPercentage int) (subtotal, discount, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	pct := min(max(discountPercentage, 0), 100)
	discount = subtotal.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(2)
	total = subtotal.Sub(discount)

	return subtotal, discount, total
}

// ListMemberOrders возвращает заказы участника.
func (s *Service) ListMemberOrders(ctx context.Context, memberID int64) ([]model.Order, error) {
	return s.repo.ListOrdersByMember(ctx, memberID)
}

// GetMemberOrder возвращает заказ, если он принадлежит участнику.
func (s *Service) GetMemberOrder(ctx context.Context, memberID int64, orderID uuid.UUID) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.MemberID != memberID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

// IsNotFound сообщает, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrOrderNotFound) ||
		errors.Is(err, repository.ErrBookNotFound) ||
		errors.Is(err, repository.ErrUserNotFound) ||
		errors.Is(err, repository.ErrNotificationNotFound)
}
