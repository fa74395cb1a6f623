package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/bookstore/internal/model"
)

// CreateMilestoneDiscount сохраняет скидку за достижение порога. Возвращает false,
// если скидка за этот порог у участника уже есть.
func (r *PostgresRepository) CreateMilestoneDiscount(ctx context.Context, d *model.MilestoneDiscount) (bool, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	var created bool
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO milestone_discounts (id, member_id, milestone, percentage, stackable, active)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (member_id, milestone) DO NOTHING`,
			d.ID, d.MemberID, d.Milestone, d.Percentage, d.Stackable, d.Active,
		)
		if err != nil {
			return fmt.Errorf("insert milestone discount: %w", err)
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}

	if created {
		err = r.pool.QueryRow(ctx,
			`SELECT applied_at FROM milestone_discounts WHERE id = $1`,
			d.ID,
		).Scan(&d.AppliedAt)
		if err != nil {
			return true, fmt.Errorf("select milestone discount: %w", err)
		}
	}

	return created, nil
}

// ListDiscountsByMember возвращает скидки участника.
func (r *PostgresRepository) ListDiscountsByMember(ctx context.Context, memberID int64) ([]model.MilestoneDiscount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, member_id, milestone, percentage, stackable, active, applied_at
		 FROM milestone_discounts
		 WHERE member_id = $1
		 ORDER BY applied_at DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("select discounts: %w", err)
	}
	defer rows.Close()

	var res []model.MilestoneDiscount
	for rows.Next() {
		var d model.MilestoneDiscount
		if err := rows.Scan(&d.ID, &d.MemberID, &d.Milestone, &d.Percentage, &d.Stackable, &d.Active, &d.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
