// Package catalog serves products and users, and applies administrative
// stock adjustments through the stock ledger.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/logger"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewService(db *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func (s *Service) ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	page, pageSize = clampPage(page, pageSize)
	return store.ListProducts(ctx, s.db, page, pageSize)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return store.GetProduct(ctx, s.db, id)
}

type CreateProductRequest struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Status      string          `json:"status"`
}

func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*models.Product, error) {
	if strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: sku and name are required", ErrInvalidInput)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if req.Stock < 0 {
		return nil, database.ErrInvalidQuantity
	}

	status := models.ProductStatus(strings.ToUpper(req.Status))
	switch status {
	case "":
		status = models.ProductStatusActive
	case models.ProductStatusActive, models.ProductStatusInactive:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, req.Status)
	}

	product, err := store.CreateProduct(ctx, s.db, store.CreateProductParams{
		SKU:         strings.TrimSpace(req.SKU),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Status:      status,
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s", ErrDuplicate, req.SKU)
		}
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("product created",
		zap.Int64("product_id", product.ID),
		zap.String("sku", product.SKU),
		zap.Int("stock", product.StockQuantity))

	return product, nil
}

type UpdateProductRequest struct {
	Price  *decimal.Decimal `json:"price,omitempty"`
	Status *string          `json:"status,omitempty"`
}

// UpdateProduct changes the list price and/or the sale status. Orders already
// placed keep their snapshotted prices and their reservations.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest) (*models.Product, error) {
	if req.Price == nil && req.Status == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if req.Price != nil && req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}

	var status models.ProductStatus
	if req.Status != nil {
		status = models.ProductStatus(strings.ToUpper(*req.Status))
		if status != models.ProductStatusActive && status != models.ProductStatusInactive {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *req.Status)
		}
	}

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if req.Price != nil {
			if err := store.UpdateProductPrice(ctx, tx, id, *req.Price); err != nil {
				return err
			}
		}
		if status != "" {
			if err := store.SetProductStatus(ctx, tx, id, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	product, err := store.GetProduct(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("product updated",
		zap.Int64("product_id", id),
		zap.String("price", product.Price.StringFixed(2)),
		zap.String("status", string(product.Status)))

	return product, nil
}

// AdjustStock restocks (delta > 0) or writes off (delta < 0) units. The
// caller passes the product version it last read.
func (s *Service) AdjustStock(ctx context.Context, productID int64, delta, expectedVersion int, adminID int64) (*models.Product, error) {
	if delta == 0 {
		return nil, database.ErrInvalidQuantity
	}

	product, err := store.AdjustStock(ctx, s.db, productID, delta, expectedVersion)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("stock adjusted",
		zap.Int64("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("stock", product.StockQuantity),
		zap.Int64("admin_id", adminID))

	return product, nil
}

type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: email and name are required", ErrInvalidInput)
	}

	role := req.Role
	switch role {
	case "":
		role = models.RoleCustomer
	case models.RoleCustomer, models.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	user, err := store.CreateUser(ctx, s.db, email, strings.TrimSpace(req.Name), role)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email %s", ErrDuplicate, email)
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	page, pageSize = clampPage(page, pageSize)
	return store.ListUsers(ctx, s.db, page, pageSize)
}

func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return store.GetUser(ctx, s.db, id)
}
