package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/realtime"
)

const (
	pushTimeout         = 3 * time.Second
	redeliveryWindow    = 24 * time.Hour
	redeliveryBatchSize = 100

	// defaultRedeliveryGrace больше pushTimeout: свежие записи ещё доставляет emit.
	defaultRedeliveryGrace = 10 * time.Second
)

// emit сохраняет уведомление и пытается доставить его в живое соединение участника.
// Ошибка возвращается только если запись не сохранена.
func (s *Service) emit(ctx context.Context, memberID int64, orderID *uuid.UUID, message string, typ model.NotificationType) (*model.Notification, error) {
	n := &model.Notification{
		MemberID: memberID,
		OrderID:  orderID,
		Message:  message,
		Type:     typ,
	}

	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}

	s.push(ctx, n)

	return n, nil
}

func (s *Service) push(ctx context.Context, n *model.Notification) bool {
	if s.pusher == nil {
		return false
	}

	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	if err := s.pusher.Push(pushCtx, *n); err != nil {
		if errors.Is(err, realtime.ErrNoConnection) {
			s.logger.Debug("member offline, notification kept", zap.String("notification", n.ID.String()))
		} else {
			s.logger.Warn("notification push error", zap.Error(err), zap.String("notification", n.ID.String()))
		}
		return false
	}

	if err := s.repo.MarkNotificationDelivered(ctx, n.ID); err != nil {
		s.logger.Warn("mark notification delivered error", zap.Error(err), zap.String("notification", n.ID.String()))
		return true
	}

	now := time.Now()
	n.DeliveredAt = &now
	return true
}

// ListNotifications возвращает уведомления участника.
func (s *Service) ListNotifications(ctx context.Context, memberID int64) ([]model.Notification, error) {
	return s.repo.ListNotificationsByMember(ctx, memberID)
}

// MarkNotificationRead отмечает уведомление участника прочитанным.
func (s *Service) MarkNotificationRead(ctx context.Context, memberID int64, id uuid.UUID) error {
	return s.repo.MarkNotificationRead(ctx, memberID, id)
}

// StartNotificationRedelivery запускает фоновую повторную отправку недоставленных уведомлений.
func (s *Service) StartNotificationRedelivery(ctx context.Context, interval time.Duration) {
	if s.pusher == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.redeliverBatch(ctx)
			}
		}
	}()
}

func (s *Service) redeliverBatch(ctx context.Context) int {
	now := time.Now()
	pending, err := s.repo.ListUndeliveredNotifications(ctx, now.Add(-redeliveryWindow), now.Add(-s.redeliveryGrace), redeliveryBatchSize)
	if err != nil {
		s.logger.Warn("list undelivered notifications error", zap.Error(err))
		return 0
	}

	delivered := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		if s.push(ctx, &pending[i]) {
			delivered++
		}
	}
	return delivered
}
