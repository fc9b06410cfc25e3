// Package httpapi exposes the order engine over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/catalog"
	"github.com/safar/order-engine/internal/metrics"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/orders"
	"github.com/safar/order-engine/internal/store"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID int64, req orders.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id int64, actor orders.Actor) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error)
	CancelOrder(ctx context.Context, id, userID int64, reason string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, id int64, details orders.PaymentDetails, adminID int64) (*models.Order, error)
	ShipOrder(ctx context.Context, id int64, details orders.ShipmentDetails, adminID int64) (*models.Order, error)
	CompleteOrder(ctx context.Context, id, adminID int64) (*models.Order, error)
	RefundOrder(ctx context.Context, id int64, reason string, adminID int64) (*models.Order, error)
	ListPayments(ctx context.Context, orderID int64) ([]models.PaymentLog, error)
}

type CatalogService interface {
	ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, req catalog.CreateProductRequest) (*models.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta, expectedVersion int, adminID int64) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, req catalog.UpdateProductRequest) (*models.Product, error)
	CreateUser(ctx context.Context, req catalog.CreateUserRequest) (*models.User, error)
	ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (orders.SweepResult, error)
}

// Idempotency is optional; without it Idempotency-Key headers are ignored.
type Idempotency interface {
	Claim(ctx context.Context, userID int64, key string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, userID int64, key string, orderID int64) error
	Abandon(ctx context.Context, userID int64, key string) error
}

type Deps struct {
	Orders      OrderService
	Catalog     CatalogService
	Sweeper     Sweeper
	Auth        Authenticator
	Idempotency Idempotency
	OrderLimit  *IPRateLimiter
	Logger      *zap.Logger
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	h := &handler{
		orders:  d.Orders,
		catalog: d.Catalog,
		sweeper: d.Sweeper,
		idem:    d.Idempotency,
		logger:  d.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				respondError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(d.Auth, d.Logger))

			r.Route("/orders", func(r chi.Router) {
				r.With(limitWith(d.OrderLimit)).Post("/", h.createOrder)
				r.Get("/", h.listOrders)
				r.Get("/{id}", h.getOrder)
				r.Post("/{id}/cancel", h.cancelOrder)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin(d.Logger))

				r.Post("/products", h.createProduct)
				r.Patch("/products/{id}", h.updateProduct)
				r.Post("/products/{id}/stock", h.adjustStock)
				r.Get("/users", h.listUsers)
				r.Post("/users", h.createUser)
				r.Get("/users/{id}", h.getUser)

				r.Post("/orders/sweep", h.sweep)
				r.Post("/orders/{id}/confirm-payment", h.confirmPayment)
				r.Post("/orders/{id}/ship", h.shipOrder)
				r.Post("/orders/{id}/complete", h.completeOrder)
				r.Post("/orders/{id}/refund", h.refundOrder)
				r.Get("/orders/{id}/payments", h.listPayments)
			})
		})
	})

	return r
}

func limitWith(l *IPRateLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}

type handler struct {
	orders  OrderService
	catalog CatalogService
	sweeper Sweeper
	idem    Idempotency
	logger  *zap.Logger
}
