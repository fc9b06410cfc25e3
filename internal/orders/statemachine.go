package orders

import (
	"fmt"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/events"
	"github.com/safar/order-engine/internal/models"
)

type Event string

const (
	EventConfirmPayment Event = "confirm_payment"
	EventCancel         Event = "cancel"
	EventExpire         Event = "expire"
	EventShip           Event = "ship"
	EventDeliver        Event = "deliver"
	EventRefund         Event = "refund"
)

// transitions is the complete table. Terminal statuses have no entry.
var transitions = map[models.OrderStatus]map[Event]models.OrderStatus{
	models.OrderStatusPending: {
		EventConfirmPayment: models.OrderStatusPaid,
		EventCancel:         models.OrderStatusCancelled,
		EventExpire:         models.OrderStatusCancelled,
		EventRefund:         models.OrderStatusRefunded,
	},
	models.OrderStatusPaid: {
		EventShip:   models.OrderStatusShipped,
		EventRefund: models.OrderStatusRefunded,
	},
	models.OrderStatusShipped: {
		EventDeliver: models.OrderStatusCompleted,
		EventRefund:  models.OrderStatusRefunded,
	},
}

// Next returns the status reached by applying ev to from.
func Next(from models.OrderStatus, ev Event) (models.OrderStatus, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s an order in status %s", database.ErrInvalidOrderState, ev, from)
	}
	return to, nil
}

func CanTransition(from models.OrderStatus, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}

// releasesStock reports whether ev returns the order's reservation to the
// available pool.
func releasesStock(ev Event) bool {
	return ev == EventCancel || ev == EventExpire || ev == EventRefund
}

func eventType(ev Event) string {
	switch ev {
	case EventConfirmPayment:
		return events.TypeOrderPaid
	case EventCancel:
		return events.TypeOrderCancelled
	case EventExpire:
		return events.TypeOrderExpired
	case EventShip:
		return events.TypeOrderShipped
	case EventDeliver:
		return events.TypeOrderCompleted
	case EventRefund:
		return events.TypeOrderRefunded
	}
	return string(ev)
}
