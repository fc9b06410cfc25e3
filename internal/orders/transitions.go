package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/logger"
	"github.com/safar/order-engine/internal/metrics"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/store"
)

// transition describes one state machine step. guard and apply run inside
// the transaction, after the order row is locked.
type transition struct {
	event Event
	actor string
	note  string
	// guard may reject the step based on the locked order.
	guard func(order *models.Order, now time.Time) error
	// apply fills in the column changes and performs extra writes.
	apply func(tx *sql.Tx, order *models.Order, u *store.StatusUpdate, now time.Time) error
}

type transitionResult struct {
	order         *models.Order
	from          models.OrderStatus
	releasedUnits int
}

// run executes t against orderID. Every attempt re-locks the row and
// re-evaluates the table and guard, so a retried transaction never acts on
// stale state. The status update is conditional on the status read under
// the lock; losing a race surfaces as ErrInvalidOrderState with no effect.
func (s *Service) run(ctx context.Context, orderID int64, t transition) (*models.Order, error) {
	var res transitionResult

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		res = transitionResult{}

		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		now := s.clock()
		if t.guard != nil {
			if err := t.guard(order, now); err != nil {
				return err
			}
		}

		to, err := Next(order.Status, t.event)
		if err != nil {
			return err
		}

		u := store.StatusUpdate{
			Status:        to,
			PaymentStatus: order.PaymentStatus,
		}

		if releasesStock(t.event) && !order.StockReleased {
			units, err := releaseItems(ctx, tx, order.Items)
			if err != nil {
				return err
			}
			u.StockReleased = true
			res.releasedUnits = units
		}

		if t.apply != nil {
			if err := t.apply(tx, order, &u, now); err != nil {
				return err
			}
		}

		u.AdminNote = auditLine(now, t.event, order.Status, to, t.actor, t.note)

		if err := store.UpdateOrderStatus(ctx, tx, orderID, order.Status, u); err != nil {
			return err
		}

		updated, err := store.GetOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		res.order = updated
		res.from = order.Status
		return nil
	})

	log := logger.FromContext(ctx, s.logger).With(
		zap.Int64("order_id", orderID),
		zap.String("event", string(t.event)),
		zap.String("actor", t.actor))

	if err != nil {
		if isBusinessError(err) {
			log.Info("order transition rejected", zap.Error(err))
		} else {
			log.Error("order transition failed", zap.Error(err))
		}
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(res.from), string(res.order.Status)).Inc()
	if res.releasedUnits > 0 {
		metrics.StockReleasedUnits.Add(float64(res.releasedUnits))
	}
	s.publish(ctx, eventType(t.event), res.from, res.order)

	log.Info("order transitioned",
		zap.String("from", string(res.from)),
		zap.String("to", string(res.order.Status)),
		zap.Int("released_units", res.releasedUnits))

	return res.order, nil
}

// releaseItems returns every item's quantity to stock, in ascending
// product id order like reservation.
func releaseItems(ctx context.Context, tx *sql.Tx, items []models.OrderItem) (int, error) {
	sorted := make([]models.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})

	units := 0
	for _, item := range sorted {
		if err := store.ReleaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return 0, fmt.Errorf("release product %d: %w", item.ProductID, err)
		}
		units += item.Quantity
	}
	return units, nil
}

func auditLine(now time.Time, ev Event, from, to models.OrderStatus, actor, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s->%s by %s", now.Format(time.RFC3339), ev, from, to, actor)
	if note != "" {
		b.WriteString(": ")
		b.WriteString(note)
	}
	b.WriteString("\n")
	return b.String()
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		database.ErrOrderNotFound,
		database.ErrInvalidOrderState,
		database.ErrAlreadyPaid,
		database.ErrAmountMismatch,
		database.ErrForbidden,
		database.ErrInvalidPayment,
		database.ErrInvalidShipment,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func userActor(id int64) string  { return fmt.Sprintf("user:%d", id) }
func adminActor(id int64) string { return fmt.Sprintf("admin:%d", id) }

const systemActor = "system:sweeper"

// CancelOrder cancels a PENDING order on behalf of its owner and returns
// its stock.
func (s *Service) CancelOrder(ctx context.Context, id, userID int64, reason string) (*models.Order, error) {
	if reason == "" {
		reason = "cancelled by customer"
	}

	return s.run(ctx, id, transition{
		event: EventCancel,
		actor: userActor(userID),
		note:  reason,
		guard: func(order *models.Order, _ time.Time) error {
			if order.UserID != userID {
				return database.ErrForbidden
			}
			return nil
		},
		apply: func(_ *sql.Tx, _ *models.Order, u *store.StatusUpdate, now time.Time) error {
			u.PaymentStatus = models.PaymentStatusCancelled
			u.CancelledAt = &now
			u.CancelReason = &reason
			return nil
		},
	})
}

// expireOrder cancels an unpaid order whose payment deadline has passed. The
// deadline and payment status are checked again under the row lock.
func (s *Service) expireOrder(ctx context.Context, id int64) (*models.Order, error) {
	reason := "payment deadline exceeded"

	return s.run(ctx, id, transition{
		event: EventExpire,
		actor: systemActor,
		note:  reason,
		guard: func(order *models.Order, now time.Time) error {
			if order.PaymentStatus != models.PaymentStatusPending {
				return fmt.Errorf("%w: payment status %s", database.ErrInvalidOrderState, order.PaymentStatus)
			}
			if !order.PaymentDeadline.Before(now) {
				return fmt.Errorf("%w: payment deadline not reached", database.ErrInvalidOrderState)
			}
			return nil
		},
		apply: func(_ *sql.Tx, _ *models.Order, u *store.StatusUpdate, now time.Time) error {
			u.PaymentStatus = models.PaymentStatusCancelled
			u.CancelledAt = &now
			u.CancelReason = &reason
			return nil
		},
	})
}

type ShipmentDetails struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (s *Service) ShipOrder(ctx context.Context, id int64, details ShipmentDetails, adminID int64) (*models.Order, error) {
	carrier := strings.TrimSpace(details.Carrier)
	tracking := strings.TrimSpace(details.TrackingNumber)
	if carrier == "" || tracking == "" {
		return nil, database.ErrInvalidShipment
	}

	return s.run(ctx, id, transition{
		event: EventShip,
		actor: adminActor(adminID),
		note:  carrier + " " + tracking,
		apply: func(_ *sql.Tx, _ *models.Order, u *store.StatusUpdate, now time.Time) error {
			u.ShippedAt = &now
			u.Carrier = &carrier
			u.TrackingNumber = &tracking
			return nil
		},
	})
}

// CompleteOrder records delivery. The reserved units are consumed and stay
// out of stock.
func (s *Service) CompleteOrder(ctx context.Context, id, adminID int64) (*models.Order, error) {
	return s.run(ctx, id, transition{
		event: EventDeliver,
		actor: adminActor(adminID),
		apply: func(_ *sql.Tx, _ *models.Order, u *store.StatusUpdate, now time.Time) error {
			u.DeliveredAt = &now
			return nil
		},
	})
}

// RefundOrder refunds a PENDING, PAID or SHIPPED order and returns its stock
// unless that already happened.
func (s *Service) RefundOrder(ctx context.Context, id int64, reason string, adminID int64) (*models.Order, error) {
	if reason == "" {
		reason = "refunded by admin"
	}

	return s.run(ctx, id, transition{
		event: EventRefund,
		actor: adminActor(adminID),
		note:  reason,
		apply: func(_ *sql.Tx, order *models.Order, u *store.StatusUpdate, now time.Time) error {
			if order.PaymentStatus == models.PaymentStatusPaid {
				u.PaymentStatus = models.PaymentStatusRefunded
			} else {
				u.PaymentStatus = models.PaymentStatusCancelled
			}
			u.RefundedAt = &now
			u.CancelReason = &reason
			return nil
		},
	})
}
