package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/model"
)

// evaluateMilestone выдаёт скидку, когда число подтверждённых заказов участника
// ровно равно порогу. Кратные значения порога скидку не дают.
func (s *Service) evaluateMilestone(ctx context.Context, order *model.Order, confirmed int) {
	if confirmed != s.milestone.Threshold {
		return
	}

	discount := &model.MilestoneDiscount{
		MemberID:   order.MemberID,
		Milestone:  s.milestone.Threshold,
		Percentage: s.milestone.Percentage,
		Stackable:  true,
		Active:     true,
	}

	created, err := s.repo.CreateMilestoneDiscount(ctx, discount)
	if err != nil {
		s.logger.Error("milestone discount error", zap.Error(err), zap.Int64("memberID", order.MemberID))
		return
	}
	if !created {
		s.logger.Warn("milestone discount already issued", zap.Int64("memberID", order.MemberID))
		return
	}

	s.logger.Info("milestone discount issued",
		zap.Int64("memberID", order.MemberID),
		zap.Int("milestone", discount.Milestone),
		zap.Int("percentage", discount.Percentage),
	)

	msg := fmt.Sprintf("Congratulations! You have completed %d orders and earned a %d%% stackable discount on your future purchases.",
		s.milestone.Threshold, s.milestone.Percentage)

	if _, err := s.emit(ctx, order.MemberID, &order.ID, msg, model.NotificationDiscountAlert); err != nil {
		s.logger.Error("discount notification error", zap.Error(err), zap.Int64("memberID", order.MemberID))
	}
}

// ListDiscounts возвращает скидки участника.
func (s *Service) ListDiscounts(ctx context.Context, memberID int64) ([]model.MilestoneDiscount, error) {
	return s.repo.ListDiscountsByMember(ctx, memberID)
}
