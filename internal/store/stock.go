package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
)

// The functions in this file are the only code that changes
// products.stock_quantity. Each change is a single statement so the row lock
// taken by UPDATE covers both the check and the write.

// ReserveStock takes quantity units out of the product's available stock.
// It fails with ErrInsufficientStock, leaving the row untouched, when fewer
// than quantity units are available.
func ReserveStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	if quantity <= 0 {
		return database.ErrInvalidQuantity
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		exists, err := productExists(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return database.ErrProductNotFound
		}
		return database.ErrInsufficientStock
	}

	return nil
}

// ReleaseStock returns quantity units to the product. Callers must make sure
// the reservation being released is still held; the order state machine
// does that under the order row lock.
func ReleaseStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	if quantity <= 0 {
		return database.ErrInvalidQuantity
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	return requireOneRow(result, database.ErrProductNotFound)
}

// AdjustStock applies an administrative restock (delta > 0) or write-off
// (delta < 0). The update only succeeds when the caller saw the current
// version and the result stays non-negative.
func AdjustStock(ctx context.Context, db database.DBTX, productID int64, delta int, expectedVersion int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2
		  AND version = $3
		  AND stock_quantity + $1 >= 0
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query, delta, productID, expectedVersion), product)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	current, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, database.ErrOptimisticLockFailed
	}
	return nil, database.ErrInsufficientStock
}

func productExists(ctx context.Context, db database.DBTX, productID int64) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)",
		productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return exists, nil
}
