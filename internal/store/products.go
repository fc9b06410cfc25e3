package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, description, price, stock_quantity, status, created_at, updated_at, version`

func scanProduct(row rowScanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.StockQuantity,
		&product.Status,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

type CreateProductParams struct {
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Status      models.ProductStatus
}

func CreateProduct(ctx context.Context, db database.DBTX, p CreateProductParams) (*models.Product, error) {
	if p.Stock < 0 {
		return nil, database.ErrInvalidQuantity
	}
	if p.Status == "" {
		p.Status = models.ProductStatusActive
	}

	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, price, stock_quantity, status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query, p.SKU, p.Name, p.Description, p.Price, p.Stock, p.Status), product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db database.DBTX, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(db.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductsByIDs loads the given products keyed by id. Missing ids are
// simply absent from the result.
func GetProductsByIDs(ctx context.Context, db database.DBTX, ids []int64) (map[int64]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	rows, err := db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product, len(ids))
	for rows.Next() {
		product := &models.Product{}
		if err := scanProduct(rows, product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// UpdateProductPrice changes the list price. Existing orders keep the price
// recorded in their item snapshots.
func UpdateProductPrice(ctx context.Context, db database.DBTX, id int64, price decimal.Decimal) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET price = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2`,
		price, id)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}

	return requireOneRow(result, database.ErrProductNotFound)
}

func SetProductStatus(ctx context.Context, db database.DBTX, id int64, status models.ProductStatus) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET status = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return requireOneRow(result, database.ErrProductNotFound)
}

func ListProducts(ctx context.Context, db database.DBTX, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func requireOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
