package orders

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/order-engine/internal/config"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/store"
	"github.com/safar/order-engine/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	db       *sql.DB
	svc      *Service
	clock    *fakeClock
	customer *models.User
	admin    *models.User
}

var seq atomic.Int64

func testOrderConfig() config.OrderConfig {
	return config.OrderConfig{
		PaymentWindow: 30 * time.Minute,
		AmountEpsilon: 0.01,
		MaxItems:      50,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewPostgres(t)
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewService(db, testOrderConfig(), WithClock(clock.Now))

	f := &fixture{db: db, svc: svc, clock: clock}
	f.customer = f.user(t, models.RoleCustomer)
	f.admin = f.user(t, models.RoleAdmin)
	return f
}

func (f *fixture) user(t *testing.T, role string) *models.User {
	t.Helper()
	n := seq.Add(1)
	u, err := store.CreateUser(context.Background(), f.db, fmt.Sprintf("user%d@example.com", n), fmt.Sprintf("User %d", n), role)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return u
}

func (f *fixture) product(t *testing.T, price string, stock int) *models.Product {
	t.Helper()
	n := seq.Add(1)
	p, err := store.CreateProduct(context.Background(), f.db, store.CreateProductParams{
		SKU:   fmt.Sprintf("SKU-%d", n),
		Name:  fmt.Sprintf("Product %d", n),
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return p
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), f.db, productID)
	if err != nil {
		t.Fatalf("Failed to get product: %v", err)
	}
	return p.StockQuantity
}

// reserved sums the quantities of productID held or consumed by orders.
func (f *fixture) reserved(t *testing.T, productID int64) int {
	t.Helper()
	var n int
	err := f.db.QueryRow(
		`SELECT COALESCE(SUM(oi.quantity), 0)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE oi.product_id = $1
		   AND o.status IN ('PENDING', 'PAID', 'SHIPPED', 'COMPLETED')`,
		productID).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to sum reservations: %v", err)
	}
	return n
}

// assertConserved checks that available plus reserved equals initial.
func (f *fixture) assertConserved(t *testing.T, productID int64, initial int) {
	t.Helper()
	stock := f.stock(t, productID)
	reserved := f.reserved(t, productID)
	if stock+reserved != initial {
		t.Errorf("Stock not conserved for product %d: available %d + reserved %d != %d",
			productID, stock, reserved, initial)
	}
	if stock < 0 {
		t.Errorf("Negative stock %d for product %d", stock, productID)
	}
}

func (f *fixture) paymentLogCount(t *testing.T, orderID int64) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM payment_logs WHERE order_id = $1`, orderID).Scan(&n); err != nil {
		t.Fatalf("Failed to count payment logs: %v", err)
	}
	return n
}

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		RecipientName: "Dana Reyes",
		Phone:         "+1 555 0100",
		Line1:         "12 Harbor Road",
		City:          "Portland",
		State:         "OR",
		PostalCode:    "97201",
		Country:       "US",
	}
}

func (f *fixture) order(t *testing.T, items ...ItemRequest) *models.Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), f.customer.ID, CreateOrderRequest{
		ShippingAddress: validAddress(),
		Items:           items,
	})
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	return order
}
