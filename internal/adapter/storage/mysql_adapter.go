package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetRecord(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := m.db.QueryRowContext(ctx, `
		SELECT product_id, variant_id, quantity, updated_at
		FROM inventory_records WHERE product_id = ? AND variant_id = ?`,
		key.ProductID, key.VariantID,
	).Scan(&rec.ProductID, &rec.VariantID, &rec.Quantity, &rec.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory record: %w", err)
	}

	return &rec, nil
}

func (m *MySQLAdapter) SetStock(ctx context.Context, key domain.StockKey, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory_records (product_id, variant_id, quantity, updated_at)
		VALUES (?, ?, ?, NOW(6))
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), updated_at = NOW(6)`,
		key.ProductID, key.VariantID, quantity,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory record: %w", err)
	}
	return nil
}

// DecrementForOrder locks the order row, applies one conditional UPDATE per
// stock key in key order and stamps the order, all in one transaction. A
// conditional UPDATE that matches no row leaves the transaction to roll back.
func (m *MySQLAdapter) DecrementForOrder(ctx context.Context, orderID string) (domain.DecrementResult, error) {
	res := domain.DecrementResult{OrderID: orderID}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return res, &domain.TransactionError{OrderID: orderID, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	var decrementedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT stock_decremented_at FROM orders WHERE id = ? FOR UPDATE`, orderID,
	).Scan(&decrementedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return res, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return res, &domain.TransactionError{OrderID: orderID, Err: fmt.Errorf("lock order: %w", err)}
	}
	if decrementedAt.Valid {
		return res, nil
	}

	items, err := queryOrderItems(ctx, tx, orderID)
	if err != nil {
		return res, &domain.TransactionError{OrderID: orderID, Err: err}
	}

	order := domain.Order{ID: orderID, Items: items}
	for _, line := range order.Decrements() {
		level, err := decrementLine(ctx, tx, line)
		if err != nil {
			var stockErr *domain.StockError
			if errors.As(err, &stockErr) {
				return domain.DecrementResult{OrderID: orderID}, err
			}
			return domain.DecrementResult{OrderID: orderID}, &domain.TransactionError{OrderID: orderID, Err: err}
		}
		res.Levels = append(res.Levels, level)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET stock_decremented_at = NOW(6), updated_at = NOW(6)
		WHERE id = ?`, orderID,
	); err != nil {
		return domain.DecrementResult{OrderID: orderID}, &domain.TransactionError{OrderID: orderID, Err: fmt.Errorf("mark order: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return domain.DecrementResult{OrderID: orderID}, &domain.TransactionError{OrderID: orderID, Err: fmt.Errorf("commit: %w", err)}
	}

	res.Applied = true
	return res, nil
}

func decrementLine(ctx context.Context, tx *sql.Tx, line domain.LineRequest) (domain.StockLevel, error) {
	key := line.Key()

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET quantity = quantity - ?, updated_at = NOW(6)
		WHERE product_id = ? AND variant_id = ? AND quantity >= ?`,
		line.Quantity, key.ProductID, key.VariantID, line.Quantity,
	)
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("decrement %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("rows affected %s: %w", key, err)
	}

	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory_records WHERE product_id = ? AND variant_id = ?`,
		key.ProductID, key.VariantID,
	).Scan(&quantity)

	if rows == 0 {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockLevel{}, &domain.StockError{Key: key, Requested: line.Quantity, Err: domain.ErrRecordNotFound}
		}
		if err != nil {
			return domain.StockLevel{}, fmt.Errorf("query %s: %w", key, err)
		}
		return domain.StockLevel{}, &domain.StockError{Key: key, Requested: line.Quantity, Err: domain.ErrInsufficientStock}
	}
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("query %s: %w", key, err)
	}

	return domain.StockLevel{Key: key, Quantity: quantity, Decrement: line.Quantity}, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, variant_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			it.ID, order.ID, i, it.ProductID, it.VariantID, it.Quantity, it.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		order         domain.Order
		decrementedAt sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, stock_decremented_at, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.UserID, &order.Status, &decrementedAt, &order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if decrementedAt.Valid {
		order.StockDecrementedAt = &decrementedAt.Time
	}

	order.Items, err = queryOrderItems(ctx, m.db, orderID)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryOrderItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price
		FROM order_items WHERE order_id = ? ORDER BY position`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}
