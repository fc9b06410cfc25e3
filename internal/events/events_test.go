package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/safar/order-engine/internal/models"
)

func TestNewOrderEvent(t *testing.T) {
	order := &models.Order{
		ID:            12,
		OrderNumber:   "ORD20260101123456",
		UserID:        3,
		Status:        models.OrderStatusCancelled,
		PaymentStatus: models.PaymentStatusCancelled,
		Total:         decimal.RequireFromString("19.98"),
		StockReleased: true,
		Items: []models.OrderItem{
			{ProductID: 5, Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		},
	}

	env, err := NewOrderEvent(TypeOrderExpired, "order-engine", models.OrderStatusPending, order)
	if err != nil {
		t.Fatalf("NewOrderEvent: %v", err)
	}

	if env.EventID == "" {
		t.Error("Expected event id to be set")
	}
	if env.CorrelationID != "12" {
		t.Errorf("Expected correlation id 12, got %q", env.CorrelationID)
	}
	if env.EventVersion != 1 {
		t.Errorf("Expected version 1, got %d", env.EventVersion)
	}

	var payload OrderPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if payload.FromStatus != models.OrderStatusPending || payload.Status != models.OrderStatusCancelled {
		t.Errorf("Unexpected statuses %s -> %s", payload.FromStatus, payload.Status)
	}
	if len(payload.Items) != 1 || payload.Items[0].Quantity != 2 {
		t.Errorf("Unexpected items %+v", payload.Items)
	}
	if !payload.Total.Equal(order.Total) {
		t.Errorf("Expected total %s, got %s", order.Total, payload.Total)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.Publish(context.Background(), Envelope{EventType: TypeOrderCreated})
}

func TestKafkaPublishIgnoresCancelledContext(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "orders", 1, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := Envelope{EventID: "e1", EventType: TypeOrderCancelled, CorrelationID: "12"}
	for i := 0; i < 20; i++ {
		p.Publish(ctx, env)
	}

	if got := len(p.inbox); got != 1 {
		t.Fatalf("Expected the event queued despite the cancelled context, inbox has %d", got)
	}

	m := <-p.inbox
	if string(m.Key) != "12" {
		t.Errorf("Expected key 12, got %q", m.Key)
	}
}
