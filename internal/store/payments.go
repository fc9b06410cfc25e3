package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
)

// InsertPaymentLog appends a payment record. Rows are never updated.
func InsertPaymentLog(ctx context.Context, tx *sql.Tx, log *models.PaymentLog) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO payment_logs (order_id, method, amount, paid_at, admin_id,
		                           reference_number, bank_name, account_name, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 RETURNING id, created_at`,
		log.OrderID, log.Method, log.Amount, log.PaidAt, log.AdminID,
		log.ReferenceNumber, log.BankName, log.AccountName, log.Notes,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("create payment log: %w", err)
	}
	return nil
}

func ListPaymentLogs(ctx context.Context, db database.DBTX, orderID int64) ([]models.PaymentLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, method, amount, paid_at, admin_id,
		        reference_number, bank_name, account_name, notes, created_at
		 FROM payment_logs
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment logs: %w", err)
	}
	defer rows.Close()

	var logs []models.PaymentLog
	for rows.Next() {
		var l models.PaymentLog
		err := rows.Scan(
			&l.ID,
			&l.OrderID,
			&l.Method,
			&l.Amount,
			&l.PaidAt,
			&l.AdminID,
			&l.ReferenceNumber,
			&l.BankName,
			&l.AccountName,
			&l.Notes,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment log: %w", err)
		}
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return logs, nil
}
