package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_id, status, payment_status,
	subtotal, shipping_fee, tax, discount, total,
	shipping_address, notes, payment_method, payment_deadline,
	paid_at, shipped_at, delivered_at, cancelled_at, refunded_at,
	carrier, tracking_number, cancel_reason, admin_notes, stock_released,
	created_at, updated_at, version`

func scanOrder(row rowScanner, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.Status,
		&order.PaymentStatus,
		&order.Subtotal,
		&order.ShippingFee,
		&order.Tax,
		&order.Discount,
		&order.Total,
		&order.ShippingAddress,
		&order.Notes,
		&order.PaymentMethod,
		&order.PaymentDeadline,
		&order.PaidAt,
		&order.ShippedAt,
		&order.DeliveredAt,
		&order.CancelledAt,
		&order.RefundedAt,
		&order.Carrier,
		&order.TrackingNumber,
		&order.CancelReason,
		&order.AdminNotes,
		&order.StockReleased,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
}

type InsertOrderParams struct {
	OrderNumber     string
	UserID          int64
	Subtotal        decimal.Decimal
	ShippingFee     decimal.Decimal
	Tax             decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	ShippingAddress models.ShippingAddress
	Notes           string
	PaymentMethod   string
	PaymentDeadline time.Time
	CreatedAt       time.Time
}

// InsertOrder creates a PENDING order. It returns inserted=false, without
// failing the transaction, when the order number is already taken.
func InsertOrder(ctx context.Context, tx *sql.Tx, p InsertOrderParams) (id int64, inserted bool, err error) {
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (order_number, user_id, status, payment_status,
		                     subtotal, shipping_fee, tax, discount, total,
		                     shipping_address, notes, payment_method, payment_deadline,
		                     created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14, 1)
		 ON CONFLICT (order_number) DO NOTHING
		 RETURNING id`,
		p.OrderNumber, p.UserID, models.OrderStatusPending, models.PaymentStatusPending,
		p.Subtotal, p.ShippingFee, p.Tax, p.Discount, p.Total,
		p.ShippingAddress, p.Notes, p.PaymentMethod, p.PaymentDeadline,
		p.CreatedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("create order: %w", err)
	}

	return id, true, nil
}

func InsertOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price, product_snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice, item.ProductSnapshot,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

// GetOrder loads an order together with its items.
func GetOrder(ctx context.Context, db database.DBTX, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(db.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := ListOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// LockOrder loads the order row with FOR UPDATE. Under READ COMMITTED the
// row returned is the latest committed version once the lock is granted,
// which is what transition guards are evaluated against.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	if err := scanOrder(tx.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	items, err := ListOrderItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func ListOrderItems(ctx context.Context, db database.DBTX, orderID int64) ([]models.OrderItem, error) {
	itemsQuery := `
		SELECT id, order_id, product_id, quantity, unit_price, total_price, product_snapshot, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, itemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.ProductSnapshot,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// StatusUpdate describes one state transition. Nil pointers leave the
// column unchanged.
type StatusUpdate struct {
	Status         models.OrderStatus
	PaymentStatus  models.PaymentStatus
	PaidAt         *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
	RefundedAt     *time.Time
	Carrier        *string
	TrackingNumber *string
	CancelReason   *string
	PaymentMethod  *string
	StockReleased  bool
	AdminNote      string
}

// UpdateOrderStatus moves an order from status `from` to u.Status. The update
// matches no row, and ErrInvalidOrderState is returned, if the order is no
// longer in `from`.
func UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, from models.OrderStatus, u StatusUpdate) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $3,
		     payment_status = $4,
		     paid_at = COALESCE($5::timestamptz, paid_at),
		     shipped_at = COALESCE($6::timestamptz, shipped_at),
		     delivered_at = COALESCE($7::timestamptz, delivered_at),
		     cancelled_at = COALESCE($8::timestamptz, cancelled_at),
		     refunded_at = COALESCE($9::timestamptz, refunded_at),
		     carrier = COALESCE($10::text, carrier),
		     tracking_number = COALESCE($11::text, tracking_number),
		     cancel_reason = COALESCE($12::text, cancel_reason),
		     payment_method = COALESCE($13::text, payment_method),
		     stock_released = stock_released OR $14::boolean,
		     admin_notes = admin_notes || $15::text,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $1 AND status = $2`,
		id, from, u.Status, u.PaymentStatus,
		u.PaidAt, u.ShippedAt, u.DeliveredAt, u.CancelledAt, u.RefundedAt,
		u.Carrier, u.TrackingNumber, u.CancelReason, u.PaymentMethod,
		u.StockReleased, u.AdminNote)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrInvalidOrderState
	}

	return nil
}

// FindExpiredOrderIDs returns PENDING, unpaid orders whose payment deadline
// is before now, oldest deadline first.
func FindExpiredOrderIDs(ctx context.Context, db database.DBTX, now time.Time, limit int) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id
		 FROM orders
		 WHERE status = $1
		   AND payment_status = $2
		   AND payment_deadline < $3
		 ORDER BY payment_deadline, id
		 LIMIT $4`,
		models.OrderStatusPending, models.PaymentStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find expired orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

func ListOrdersCursor(ctx context.Context, db database.DBTX, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	// The first page has no lower bound, whatever clock stamped created_at.
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	args := []any{userID, limit + 1}
	if cursor != "" {
		query = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($3, $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
		args = append(args, cursorData.CreatedAt, cursorData.ID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
