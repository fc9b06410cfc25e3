package orders

import (
	"errors"
	"testing"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from    models.OrderStatus
		event   Event
		want    models.OrderStatus
		wantErr bool
	}{
		{models.OrderStatusPending, EventConfirmPayment, models.OrderStatusPaid, false},
		{models.OrderStatusPending, EventCancel, models.OrderStatusCancelled, false},
		{models.OrderStatusPending, EventExpire, models.OrderStatusCancelled, false},
		{models.OrderStatusPending, EventRefund, models.OrderStatusRefunded, false},
		{models.OrderStatusPending, EventShip, "", true},
		{models.OrderStatusPaid, EventShip, models.OrderStatusShipped, false},
		{models.OrderStatusPaid, EventRefund, models.OrderStatusRefunded, false},
		{models.OrderStatusPaid, EventCancel, "", true},
		{models.OrderStatusPaid, EventConfirmPayment, "", true},
		{models.OrderStatusShipped, EventDeliver, models.OrderStatusCompleted, false},
		{models.OrderStatusShipped, EventRefund, models.OrderStatusRefunded, false},
		{models.OrderStatusShipped, EventExpire, "", true},
		{models.OrderStatusCancelled, EventCancel, "", true},
		{models.OrderStatusCancelled, EventRefund, "", true},
		{models.OrderStatusCompleted, EventRefund, "", true},
		{models.OrderStatusRefunded, EventRefund, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := Next(tt.from, tt.event)
			if tt.wantErr {
				if !errors.Is(err, database.ErrInvalidOrderState) {
					t.Errorf("Expected ErrInvalidOrderState, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	all := []Event{EventConfirmPayment, EventCancel, EventExpire, EventShip, EventDeliver, EventRefund}

	for _, status := range []models.OrderStatus{
		models.OrderStatusCancelled,
		models.OrderStatusCompleted,
		models.OrderStatusRefunded,
	} {
		if !status.IsTerminal() {
			t.Errorf("%s should be terminal", status)
		}
		for _, ev := range all {
			if CanTransition(status, ev) {
				t.Errorf("%s must not accept %s", status, ev)
			}
		}
	}
}

func TestReleasingEventsLeaveReservingStatuses(t *testing.T) {
	for from, edges := range transitions {
		for ev, to := range edges {
			if releasesStock(ev) && to.HoldsReservation() {
				t.Errorf("%s -%s-> %s releases stock but still holds a reservation", from, ev, to)
			}
		}
	}
}
