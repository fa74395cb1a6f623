package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/claimcode"
	"github.com/mmeshcher/bookstore/internal/model"
)

const staffListLimit = 200

// ProcessOrder выдаёт заказ по коду: проверяет статус Pending, затем код, переводит
// заказ в Confirmed и запоминает сотрудника. Для заказа не в Pending любой код даёт
// ErrOrderNotPending. После фиксации запускает начисление скидки
// за порог заказов. Ошибки начисления и уведомления не влияют на результат выдачи.
func (s *Service) ProcessOrder(ctx context.Context, orderID uuid.UUID, code string, staffID int64) (*model.Order, error) {
	check := func(o *model.Order) error {
		if o.Status != model.OrderStatusPending {
			return ErrOrderNotPending
		}
		if err := claimcode.Verify(o.ClaimCode, code); err != nil {
			return ErrInvalidClaimCode
		}
		return nil
	}

	order, confirmed, err := s.repo.ConfirmOrder(ctx, orderID, staffID, check)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order confirmed",
		zap.String("order", order.ID.String()),
		zap.Int64("staffID", staffID),
		zap.Int64("memberID", order.MemberID),
		zap.Int("confirmedOrders", confirmed),
	)

	s.evaluateMilestone(context.WithoutCancel(ctx), order, confirmed)

	return order, nil
}

// UpdateStatus устанавливает статус заказа без проверки кода выдачи. Возврат в Pending
// запрещён. Скидки за порог заказов здесь не начисляются.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string, staffID int64) (*model.Order, error) {
	target, ok := model.ParseOrderStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}

	check := func(o *model.Order) error {
		if target == model.OrderStatusPending && o.Status != model.OrderStatusPending {
			return ErrOrderNotPending
		}
		return nil
	}

	order, previous, err := s.repo.UpdateOrderStatus(ctx, orderID, target, staffID, check)
	if err != nil {
		return nil, err
	}

	if previous != target {
		s.logger.Info("order status overridden",
			zap.String("order", order.ID.String()),
			zap.String("from", string(previous)),
			zap.String("to", string(target)),
			zap.Int64("staffID", staffID),
		)

		msg := fmt.Sprintf("Your order %s is now %s.", order.ID, target)
		if _, err := s.emit(context.WithoutCancel(ctx), order.MemberID, &order.ID, msg, model.NotificationOrderUpdate); err != nil {
			s.logger.Error("order update notification error", zap.Error(err), zap.String("order", order.ID.String()))
		}
	}

	return order, nil
}

// ListOrders возвращает заказы для сотрудников, пустой status означает все заказы.
func (s *Service) ListOrders(ctx context.Context, status string) ([]model.Order, error) {
	if status == "" {
		return s.repo.ListOrdersByStatus(ctx, "", staffListLimit)
	}

	st, ok := model.ParseOrderStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListOrdersByStatus(ctx, st, staffListLimit)
}

// GetOrderHistory возвращает журнал смены статусов заказа.
func (s *Service) GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]model.StatusLogEntry, error) {
	return s.repo.GetOrderHistory(ctx, orderID)
}
