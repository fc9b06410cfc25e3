package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/testutil"
)

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, defaultPageSize},
		{3, 500, 3, maxPageSize},
		{2, 10, 2, 10},
	}
	for _, tt := range tests {
		p, s := clampPage(tt.page, tt.size)
		if p != tt.wantPage || s != tt.wantSize {
			t.Errorf("clampPage(%d, %d) = %d, %d", tt.page, tt.size, p, s)
		}
	}
}

func TestProductsAndStock(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc := NewService(db, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductRequest{
		SKU:   "MUG-01",
		Name:  "Mug",
		Price: decimal.RequireFromString("8.50"),
		Stock: 3,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if product.Status != models.ProductStatusActive {
		t.Errorf("Expected ACTIVE default, got %s", product.Status)
	}

	if _, err := svc.CreateProduct(ctx, CreateProductRequest{SKU: "MUG-01", Name: "Mug", Price: decimal.NewFromInt(1)}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, CreateProductRequest{SKU: "X", Name: "X", Stock: -1}); !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}

	restocked, err := svc.AdjustStock(ctx, product.ID, 7, product.Version, 1)
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if restocked.StockQuantity != 10 {
		t.Errorf("Expected stock 10, got %d", restocked.StockQuantity)
	}

	if _, err := svc.AdjustStock(ctx, product.ID, -1, product.Version, 1); !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Errorf("Expected ErrOptimisticLockFailed for stale version, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, product.ID, -11, restocked.Version, 1); !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected ErrInsufficientStock for write-off below zero, got %v", err)
	}

	page, err := svc.ListProducts(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("Expected 1 product, got %d", page.Total)
	}
}

func TestCreateUser(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc := NewService(db, nil)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Email: " Ana@Example.com ", Name: "Ana"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "ana@example.com" || user.Role != models.RoleCustomer {
		t.Errorf("Unexpected user %+v", user)
	}

	if _, err := svc.CreateUser(ctx, CreateUserRequest{Email: "ana@example.com", Name: "Ana"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, CreateUserRequest{Email: "bo@example.com", Name: "Bo", Role: "root"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}

	got, err := svc.GetUser(ctx, user.ID)
	if err != nil || got.Email != user.Email {
		t.Errorf("GetUser: %+v, %v", got, err)
	}
	if _, err := svc.GetUser(ctx, 999999); !errors.Is(err, database.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	page, err := svc.ListUsers(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if page.Total != 1 || page.PageSize != defaultPageSize {
		t.Errorf("Unexpected page total %d size %d", page.Total, page.PageSize)
	}
}

func TestUpdateProduct(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc := NewService(db, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductRequest{
		SKU:   "PEN-01",
		Name:  "Pen",
		Price: decimal.RequireFromString("1.20"),
		Stock: 5,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	price := decimal.RequireFromString("1.50")
	inactive := "inactive"
	updated, err := svc.UpdateProduct(ctx, product.ID, UpdateProductRequest{Price: &price, Status: &inactive})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if !updated.Price.Equal(price) || updated.Status != models.ProductStatusInactive {
		t.Errorf("Unexpected product %s %s", updated.Price, updated.Status)
	}
	if updated.StockQuantity != 5 {
		t.Errorf("Update must not touch stock, got %d", updated.StockQuantity)
	}

	if _, err := svc.UpdateProduct(ctx, product.ID, UpdateProductRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty update, got %v", err)
	}
	bogus := "SOLD_OUT"
	if _, err := svc.UpdateProduct(ctx, product.ID, UpdateProductRequest{Status: &bogus}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown status, got %v", err)
	}
	if _, err := svc.UpdateProduct(ctx, 999999, UpdateProductRequest{Price: &price}); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}
