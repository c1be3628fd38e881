package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type mysqlLineItems struct{ q querier }

func (m mysqlLineItems) Create(ctx context.Context, item *domain.LineItem) error {
	if err := domain.PrepareLineItem(item); err != nil {
		return err
	}

	snapshot, err := json.Marshal(item.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = m.q.ExecContext(ctx, `
		INSERT INTO order_line_items (id, order_id, product_id, snapshot, quantity, price, compare_at,
		                              subtotal, discount, tax, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OrderID, item.ProductID, snapshot, item.Quantity, item.Price, item.CompareAt,
		item.Subtotal, item.Discount, item.Tax, item.Total, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func (m mysqlLineItems) ListByOrder(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := m.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, snapshot, quantity, price, compare_at,
		       subtotal, discount, tax, total, created_at
		FROM order_line_items WHERE order_id = ?
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var (
			item     domain.LineItem
			snapshot []byte
		)
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &snapshot, &item.Quantity, &item.Price,
			&item.CompareAt, &item.Subtotal, &item.Discount, &item.Tax, &item.Total, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type mysqlOrders struct{ q querier }

func (m mysqlOrders) Create(ctx context.Context, o *domain.Order) error {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, subtotal, discount, tax, total, cancel_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Status, o.Subtotal, o.Discount, o.Tax, o.Total, o.CancelReason,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m mysqlOrders) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := m.q.QueryRowContext(ctx, `
		SELECT id, user_id, status, subtotal, discount, tax, total, cancel_reason, created_at, updated_at
		FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.Discount, &o.Tax, &o.Total, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (m mysqlOrders) UpdateTotals(ctx context.Context, o *domain.Order) error {
	result, err := m.q.ExecContext(ctx, `
		UPDATE orders
		SET subtotal = ?, discount = ?, tax = ?, total = ?, updated_at = ?
		WHERE id = ?`,
		o.Subtotal, o.Discount, o.Tax, o.Total, time.Now().UTC(), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order totals: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.NotFoundError{Entity: "order", ID: o.ID}
	}
	return nil
}

func (m mysqlOrders) TransitionStatus(ctx context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus, reason string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{to, reason, time.Now().UTC(), id}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := m.q.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, cancel_reason = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("transition order status: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}
