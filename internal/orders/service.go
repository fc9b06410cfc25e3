// Package orders owns the order lifecycle: building orders against the
// stock ledger, the status state machine, payment confirmation and the
// expiry sweep.
package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/address"
	"github.com/safar/order-engine/internal/config"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/events"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type Service struct {
	db        *sql.DB
	cfg       config.OrderConfig
	validator address.Validator
	pricer    Pricer
	publisher events.Publisher
	logger    *zap.Logger
	producer  string
	now       func() time.Time
}

type Option func(*Service)

func WithValidator(v address.Validator) Option {
	return func(s *Service) { s.validator = v }
}

func WithPricer(p Pricer) Option {
	return func(s *Service) { s.pricer = p }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithProducer sets the producer name stamped on published events.
func WithProducer(name string) Option {
	return func(s *Service) { s.producer = name }
}

// WithClock replaces time.Now. Tests use it to move across payment deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *sql.DB, cfg config.OrderConfig, opts ...Option) *Service {
	s := &Service{
		db:        db,
		cfg:       cfg,
		validator: address.BasicValidator{},
		pricer:    ZeroPricer{},
		publisher: events.NopPublisher{},
		logger:    zap.NewNop(),
		producer:  "order-engine",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at the precision Postgres stores.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// GetOrder returns the order with its items. Customers only see their own
// orders.
func (s *Service) GetOrder(ctx context.Context, id int64, actor Actor) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, database.ErrForbidden
	}

	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	page, err := store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders for user %d: %w", userID, err)
	}
	return page, nil
}

func (s *Service) publish(ctx context.Context, eventType string, from models.OrderStatus, order *models.Order) {
	env, err := events.NewOrderEvent(eventType, s.producer, from, order)
	if err != nil {
		s.logger.Error("build order event failed",
			zap.String("event_type", eventType),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}
	s.publisher.Publish(ctx, env)
}
