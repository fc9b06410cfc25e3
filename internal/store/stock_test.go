package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/testutil"
)

func createTestProduct(t *testing.T, db *sql.DB, sku string, stock int) *models.Product {
	t.Helper()
	product, err := CreateProduct(context.Background(), db, CreateProductParams{
		SKU:   sku,
		Name:  "Product " + sku,
		Price: decimal.NewFromInt(100),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}

func TestConcurrentStockReservation(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product := createTestProduct(t, db, "TEST-001", 10)

	concurrency := 8
	var wg sync.WaitGroup
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
				return ReserveStock(ctx, tx, product.ID, 2)
			})
		}()
	}

	wg.Wait()
	close(errs)

	successCount := 0
	for err := range errs {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 5 {
		t.Errorf("Expected 5 successful reservations, got %d", successCount)
	}

	finalProduct, err := GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if finalProduct.StockQuantity != 0 {
		t.Errorf("Expected stock 0, got %d", finalProduct.StockQuantity)
	}
}

func TestReserveStockFailureLeavesRowUntouched(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product := createTestProduct(t, db, "TEST-002", 3)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return ReserveStock(ctx, tx, product.ID, 4)
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return ReserveStock(ctx, tx, 999999, 1)
	})
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return ReserveStock(ctx, tx, product.ID, 0)
	})
	if !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}

	after, err := GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 3 {
		t.Errorf("Expected stock 3, got %d", after.StockQuantity)
	}
}

func TestReleaseStock(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product := createTestProduct(t, db, "TEST-003", 5)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := ReserveStock(ctx, tx, product.ID, 5); err != nil {
			return err
		}
		return ReleaseStock(ctx, tx, product.ID, 2)
	})
	if err != nil {
		t.Fatalf("Reserve and release: %v", err)
	}

	after, err := GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 2 {
		t.Errorf("Expected stock 2, got %d", after.StockQuantity)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return ReleaseStock(ctx, tx, 999999, 1)
	})
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestAdjustStockOptimisticLocking(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product := createTestProduct(t, db, "TEST-004", 50)

	updated, err := AdjustStock(ctx, db, product.ID, -10, product.Version)
	if err != nil {
		t.Fatalf("First adjust should succeed: %v", err)
	}
	if updated.StockQuantity != 40 || updated.Version != product.Version+1 {
		t.Errorf("Unexpected product after adjust: stock %d version %d", updated.StockQuantity, updated.Version)
	}

	if _, err := AdjustStock(ctx, db, product.ID, -10, product.Version); !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Errorf("Expected optimistic lock failure, got: %v", err)
	}

	if _, err := AdjustStock(ctx, db, product.ID, -41, updated.Version); !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected ErrInsufficientStock, got: %v", err)
	}
}

// A reservation blocks behind another transaction holding the row and then
// re-evaluates the predicate against the committed value.
func TestReserveStockWaitsForConcurrentWriter(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product := createTestProduct(t, db, "TEST-005", 5)

	tx1, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx1: %v", err)
	}
	defer func() { _ = tx1.Rollback() }()

	if err := ReserveStock(ctx, tx1, product.ID, 4); err != nil {
		t.Fatalf("Reserve stock in tx1: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			return ReserveStock(ctx, tx, product.ID, 3)
		})
	}()

	select {
	case err := <-done:
		t.Fatalf("Second reservation should block on the row lock, returned %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	if err := tx1.Commit(); err != nil {
		t.Fatalf("Commit tx1: %v", err)
	}

	if err := <-done; !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected ErrInsufficientStock after tx1 committed, got %v", err)
	}
}
