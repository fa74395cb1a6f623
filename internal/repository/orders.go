package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bookstore/internal/model"
)

// PriceFunc рассчитывает суммы заказа по позициям и суммарному проценту скидок участника.
type PriceFunc func(items []model.OrderItem, discountPercentage int) (subtotal, discount, total decimal.Decimal)

// OrderCheck проверяет заказ, заблокированный в транзакции, до его изменения.
// Ошибка проверки отменяет транзакцию и возвращается вызывающему без изменений.
type OrderCheck func(o *model.Order) error

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, member_id, subtotal, discount_amount, total_amount, claim_code, status, ordered_at, processed_by, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                               model.Order
		subtotal, discount, totalAmount int64
		status                          string
	)
	err := row.Scan(&o.ID, &o.MemberID, &subtotal, &discount, &totalAmount,
		&o.ClaimCode, &status, &o.OrderedAt, &o.ProcessedBy, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Subtotal = centsToDecimal(subtotal)
	o.DiscountAmount = centsToDecimal(discount)
	o.TotalAmount = centsToDecimal(totalAmount)
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(orders))
	byID := make(map[uuid.UUID]*model.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := q.Query(ctx,
		`SELECT order_id, book_id, title, quantity, unit_price
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID   uuid.UUID
			item      model.OrderItem
			unitCents int64
		)
		if err := rows.Scan(&orderID, &item.BookID, &item.Title, &item.Quantity, &unitCents); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.UnitPrice = centsToDecimal(unitCents)
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func insertStatusLog(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status model.OrderStatus, changedBy int64, note string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO order_status_log (order_id, status, changed_by, note) VALUES ($1, $2, $3, $4)`,
		orderID, string(status), changedBy, note,
	)
	if err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}
	return nil
}

// CreateOrder оформляет заказ участника: фиксирует цены книг, применяет активные
// суммируемые скидки, списывает остатки и сохраняет заказ в статусе Pending.
// Позиции блокируются в порядке их следования в lines.
func (r *PostgresRepository) CreateOrder(ctx context.Context, memberID int64, lines []model.CartLine, claimCode string, price PriceFunc) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	items := make([]model.OrderItem, 0, len(lines))
	for _, line := range lines {
		var (
			title      string
			priceCents int64
			stock      int
		)
		err := tx.QueryRow(ctx,
			`SELECT title, price, stock FROM books WHERE id = $1 FOR UPDATE`,
			line.BookID,
		).Scan(&title, &priceCents, &stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %d", ErrBookNotFound, line.BookID)
			}
			return nil, fmt.Errorf("select book: %w", err)
		}
		if stock < line.Quantity {
			return nil, fmt.Errorf("%w: book %d", ErrInsufficientStock, line.BookID)
		}

		items = append(items, model.OrderItem{
			BookID:    line.BookID,
			Title:     title,
			Quantity:  line.Quantity,
			UnitPrice: centsToDecimal(priceCents),
		})
	}

	var percentage int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(percentage), 0)
		 FROM milestone_discounts
		 WHERE member_id = $1 AND active AND stackable`,
		memberID,
	).Scan(&percentage)
	if err != nil {
		return nil, fmt.Errorf("sum discounts: %w", err)
	}

	subtotal, discount, total := price(items, percentage)

	o := &model.Order{
		ID:             uuid.New(),
		MemberID:       memberID,
		Items:          items,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TotalAmount:    total,
		ClaimCode:      claimCode,
		Status:         model.OrderStatusPending,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, member_id, subtotal, discount_amount, total_amount, claim_code, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING ordered_at, updated_at`,
		o.ID, memberID, decimalToCents(subtotal), decimalToCents(discount), decimalToCents(total),
		claimCode, string(model.OrderStatusPending),
	).Scan(&o.OrderedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, position, book_id, title, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i, item.BookID, item.Title, item.Quantity, decimalToCents(item.UnitPrice),
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE books SET stock = stock - $2 WHERE id = $1`,
			item.BookID, item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("update stock: %w", err)
		}
	}

	if err := insertStatusLog(ctx, tx, o.ID, model.OrderStatusPending, memberID, "checkout"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return o, nil
}

// GetOrder возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := loadItems(ctx, r.pool, []*model.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) lockOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*model.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return o, nil
}

func setOrderStatus(ctx context.Context, tx pgx.Tx, o *model.Order, status model.OrderStatus, staffID int64) error {
	err := tx.QueryRow(ctx,
		`UPDATE orders
		 SET status = $2, processed_by = COALESCE(processed_by, $3), updated_at = now()
		 WHERE id = $1
		 RETURNING processed_by, updated_at`,
		o.ID, string(status), staffID,
	).Scan(&o.ProcessedBy, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	o.Status = status
	return nil
}

// ConfirmOrder переводит заказ в статус Confirmed после успешной проверки check и
// возвращает количество подтверждённых заказов участника с учётом этого заказа.
// Подсчёт выполняется в той же транзакции под блокировкой строки участника, поэтому
// параллельные подтверждения заказов одного участника получают последовательные значения.
func (r *PostgresRepository) ConfirmOrder(ctx context.Context, orderID uuid.UUID, staffID int64, check OrderCheck) (*model.Order, int, error) {
	var (
		order     *model.Order
		confirmed int
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		o, err := r.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := check(o); err != nil {
			return err
		}

		if err := setOrderStatus(ctx, tx, o, model.OrderStatusConfirmed, staffID); err != nil {
			return err
		}

		if err := insertStatusLog(ctx, tx, o.ID, model.OrderStatusConfirmed, staffID, "claim code verified"); err != nil {
			return err
		}

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, o.MemberID).Scan(&dummy)
		if err != nil {
			return fmt.Errorf("lock member for update: %w", err)
		}

		var count int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM orders WHERE member_id = $1 AND status = $2`,
			o.MemberID, string(model.OrderStatusConfirmed),
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count confirmed orders: %w", err)
		}

		if err := loadItems(ctx, tx, []*model.Order{o}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		order, confirmed = o, count
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return order, confirmed, nil
}

// UpdateOrderStatus устанавливает статус заказа без проверки кода выдачи.
// Возвращает обновлённый заказ и статус, который был у него до изменения.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus, staffID int64, check OrderCheck) (*model.Order, model.OrderStatus, error) {
	var (
		order    *model.Order
		previous model.OrderStatus
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		o, err := r.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := check(o); err != nil {
			return err
		}

		prev := o.Status
		if err := setOrderStatus(ctx, tx, o, status, staffID); err != nil {
			return err
		}

		if prev != status {
			if err := insertStatusLog(ctx, tx, o.ID, status, staffID, "status override"); err != nil {
				return err
			}
		}

		if err := loadItems(ctx, tx, []*model.Order{o}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		order, previous = o, prev
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return order, previous, nil
}

func (r *PostgresRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if err := loadItems(ctx, r.pool, ptrs); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(ptrs))
	for _, o := range ptrs {
		orders = append(orders, *o)
	}
	return orders, nil
}

// ListOrdersByMember возвращает заказы участника, начиная с последних.
func (r *PostgresRepository) ListOrdersByMember(ctx context.Context, memberID int64) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE member_id = $1
		 ORDER BY ordered_at DESC`,
		memberID,
	)
}

// ListOrdersByStatus возвращает заказы с указанным статусом в порядке оформления.
// Пустой статус означает все заказы.
func (r *PostgresRepository) ListOrdersByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]model.Order, error) {
	if status == "" {
		return r.queryOrders(ctx,
			`SELECT `+orderColumns+` FROM orders ORDER BY ordered_at LIMIT $1`,
			limit,
		)
	}
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = $1
		 ORDER BY ordered_at
		 LIMIT $2`,
		string(status), limit,
	)
}

// GetOrderHistory возвращает журнал смены статусов заказа.
func (r *PostgresRepository) GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]model.StatusLogEntry, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	rows, err := r.pool.Query(ctx,
		`SELECT status, COALESCE(changed_by, 0), changed_at, note
		 FROM order_status_log
		 WHERE order_id = $1
		 ORDER BY changed_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select status log: %w", err)
	}
	defer rows.Close()

	var history []model.StatusLogEntry
	for rows.Next() {
		var (
			entry     model.StatusLogEntry
			status    string
			changedAt time.Time
		)
		if err := rows.Scan(&status, &entry.ChangedBy, &changedAt, &entry.Note); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		entry.Status = model.OrderStatus(status)
		entry.ChangedAt = changedAt
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return history, nil
}
