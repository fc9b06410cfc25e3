package orders

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
)

var orderNumberPattern = regexp.MustCompile(`^ORD\d{8}\d{6}$`)

func TestGenerateOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		n := generateOrderNumber(now)
		if !orderNumberPattern.MatchString(n) {
			t.Fatalf("Malformed order number %q", n)
		}
		if !strings.HasPrefix(n, "ORD20260309") {
			t.Fatalf("Expected date prefix ORD20260309, got %q", n)
		}
	}
}

func TestNormalizeItemsSortsByProduct(t *testing.T) {
	items, err := normalizeItems([]ItemRequest{
		{ProductID: 9, Quantity: 1},
		{ProductID: 2, Quantity: 3},
		{ProductID: 5, Quantity: 2},
	}, 10)
	if err != nil {
		t.Fatalf("normalizeItems: %v", err)
	}

	got := fmt.Sprint(items)
	if got != "[{2 3} {5 2} {9 1}]" {
		t.Errorf("Unexpected order %s", got)
	}
}

func TestNormalizeItemsRejects(t *testing.T) {
	tests := []struct {
		name  string
		items []ItemRequest
		max   int
		want  error
	}{
		{"empty", nil, 10, database.ErrEmptyOrder},
		{"zero quantity", []ItemRequest{{ProductID: 1, Quantity: 0}}, 10, database.ErrInvalidQuantity},
		{"negative quantity", []ItemRequest{{ProductID: 1, Quantity: -2}}, 10, database.ErrInvalidQuantity},
		{"duplicate", []ItemRequest{{ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 2}}, 10, database.ErrDuplicateItem},
		{"too many", []ItemRequest{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}}, 1, database.ErrTooManyItems},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := normalizeItems(tt.items, tt.max); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	wrapped := fmt.Errorf("%w: product 4", database.ErrInsufficientStock)
	if got := failureReason(wrapped); got != "insufficient_stock" {
		t.Errorf("Expected insufficient_stock, got %s", got)
	}
	if got := failureReason(database.ErrDuplicateItem); got != "invalid_request" {
		t.Errorf("Expected invalid_request, got %s", got)
	}
	if got := failureReason(errors.New("connection reset")); got != "internal" {
		t.Errorf("Expected internal, got %s", got)
	}
}

func TestAuditLine(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	line := auditLine(now, EventCancel, models.OrderStatusPending, models.OrderStatusCancelled, "user:3", "changed my mind")
	want := "[2026-01-02T03:04:05Z] cancel PENDING->CANCELLED by user:3: changed my mind\n"
	if line != want {
		t.Errorf("Expected %q, got %q", want, line)
	}
}
