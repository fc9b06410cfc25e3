package httpapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/safar/order-engine/internal/catalog"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/orders"
	"github.com/safar/order-engine/internal/redisx"
	"github.com/safar/order-engine/internal/store"
)

type fakeOrders struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*models.Order
	created int
	err     error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: make(map[int64]*models.Order)}
}

func (f *fakeOrders) CreateOrder(_ context.Context, userID int64, req orders.CreateOrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(req.Items) == 0 {
		return nil, database.ErrEmptyOrder
	}
	f.nextID++
	f.created++
	o := &models.Order{ID: f.nextID, UserID: userID, Status: models.OrderStatusPending, PaymentStatus: models.PaymentStatusPending}
	f.byID[o.ID] = o
	return o, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id int64, actor orders.Actor) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	if !actor.IsAdmin() && o.UserID != actor.UserID {
		return nil, database.ErrForbidden
	}
	return o, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, userID int64, cursor string, _ int) (*store.CursorPage, error) {
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return &store.CursorPage{Items: out}, nil
}

func (f *fakeOrders) transition(id int64, from, to models.OrderStatus) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	if o.Status != from {
		return nil, database.ErrInvalidOrderState
	}
	o.Status = to
	return o, nil
}

func (f *fakeOrders) CancelOrder(_ context.Context, id, userID int64, _ string) (*models.Order, error) {
	f.mu.Lock()
	o, ok := f.byID[id]
	f.mu.Unlock()
	if ok && o.UserID != userID {
		return nil, database.ErrForbidden
	}
	return f.transition(id, models.OrderStatusPending, models.OrderStatusCancelled)
}

func (f *fakeOrders) ConfirmPayment(_ context.Context, id int64, d orders.PaymentDetails, _ int64) (*models.Order, error) {
	if d.Method == "" {
		return nil, database.ErrInvalidPayment
	}
	f.mu.Lock()
	o, ok := f.byID[id]
	f.mu.Unlock()
	if ok && o.PaymentStatus == models.PaymentStatusPaid {
		return nil, database.ErrAlreadyPaid
	}
	if ok && !o.Total.Equal(d.Amount) {
		return nil, database.ErrAmountMismatch
	}
	o, err := f.transition(id, models.OrderStatusPending, models.OrderStatusPaid)
	if err == nil {
		o.PaymentStatus = models.PaymentStatusPaid
	}
	return o, err
}

func (f *fakeOrders) ShipOrder(_ context.Context, id int64, _ orders.ShipmentDetails, _ int64) (*models.Order, error) {
	return f.transition(id, models.OrderStatusPaid, models.OrderStatusShipped)
}

func (f *fakeOrders) CompleteOrder(_ context.Context, id, _ int64) (*models.Order, error) {
	return f.transition(id, models.OrderStatusShipped, models.OrderStatusCompleted)
}

func (f *fakeOrders) RefundOrder(_ context.Context, id int64, _ string, _ int64) (*models.Order, error) {
	return f.transition(id, models.OrderStatusPaid, models.OrderStatusRefunded)
}

func (f *fakeOrders) ListPayments(_ context.Context, orderID int64) ([]models.PaymentLog, error) {
	if _, ok := f.byID[orderID]; !ok {
		return nil, database.ErrOrderNotFound
	}
	return []models.PaymentLog{}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) ListProducts(_ context.Context, page, pageSize int) (*store.OffsetPage, error) {
	return &store.OffsetPage{Items: []models.Product{{ID: 1, SKU: "A"}}, Total: 1, Page: page, PageSize: pageSize}, nil
}

func (fakeCatalog) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	if id != 1 {
		return nil, database.ErrProductNotFound
	}
	return &models.Product{ID: 1, SKU: "A"}, nil
}

func (fakeCatalog) CreateProduct(_ context.Context, req catalog.CreateProductRequest) (*models.Product, error) {
	return &models.Product{ID: 2, SKU: req.SKU, Name: req.Name, Price: req.Price, StockQuantity: req.Stock}, nil
}

func (fakeCatalog) AdjustStock(_ context.Context, id int64, delta, version int, _ int64) (*models.Product, error) {
	if version != 1 {
		return nil, database.ErrOptimisticLockFailed
	}
	return &models.Product{ID: id, StockQuantity: delta, Version: 2}, nil
}

func (fakeCatalog) CreateUser(_ context.Context, req catalog.CreateUserRequest) (*models.User, error) {
	return &models.User{ID: 5, Email: req.Email, Name: req.Name, Role: models.RoleCustomer}, nil
}

func (fakeCatalog) UpdateProduct(_ context.Context, id int64, req catalog.UpdateProductRequest) (*models.Product, error) {
	if id != 1 {
		return nil, database.ErrProductNotFound
	}
	if req.Price == nil && req.Status == nil {
		return nil, catalog.ErrInvalidInput
	}
	return &models.Product{ID: 1, SKU: "A", Version: 2}, nil
}

func (fakeCatalog) ListUsers(_ context.Context, page, pageSize int) (*store.OffsetPage, error) {
	return &store.OffsetPage{Items: []models.User{{ID: 5}}, Total: 1, Page: page, PageSize: pageSize}, nil
}

func (fakeCatalog) GetUser(_ context.Context, id int64) (*models.User, error) {
	if id != 5 {
		return nil, database.ErrUserNotFound
	}
	return &models.User{ID: 5, Role: models.RoleCustomer}, nil
}

type fakeSweeper struct{ calls int }

func (s *fakeSweeper) Sweep(context.Context) (orders.SweepResult, error) {
	s.calls++
	return orders.SweepResult{Scanned: 2, Cancelled: 2}, nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func (m *memIdempotency) k(userID int64, key string) string {
	return fmt.Sprintf("%d:%s", userID, key)
}

func (m *memIdempotency) Claim(_ context.Context, userID int64, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[m.k(userID, key)]
	if !ok {
		m.keys[m.k(userID, key)] = 0
		return 0, true, nil
	}
	if v == 0 {
		return 0, false, redisx.ErrRequestInFlight
	}
	return v, false, nil
}

func (m *memIdempotency) Complete(_ context.Context, userID int64, key string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[m.k(userID, key)] = orderID
	return nil
}

func (m *memIdempotency) Abandon(_ context.Context, userID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, m.k(userID, key))
	return nil
}
