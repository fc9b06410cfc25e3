package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/events"
	"github.com/safar/order-engine/internal/logger"
	"github.com/safar/order-engine/internal/metrics"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/store"
)

const maxOrderNumberAttempts = 5

type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderRequest struct {
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	Items           []ItemRequest          `json:"items"`
	Notes           string                 `json:"notes"`
	PaymentMethod   string                 `json:"payment_method"`
}

// Charges are the order-level amounts added to or taken from the subtotal.
type Charges struct {
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
}

// Pricer computes shipping, tax and discount for an order being built. It
// runs inside the creation transaction and must not block on slow backends.
type Pricer interface {
	Quote(ctx context.Context, subtotal decimal.Decimal, addr models.ShippingAddress, items []models.OrderItem) (Charges, error)
}

// ZeroPricer charges nothing on top of the subtotal.
type ZeroPricer struct{}

func (ZeroPricer) Quote(context.Context, decimal.Decimal, models.ShippingAddress, []models.OrderItem) (Charges, error) {
	return Charges{ShippingFee: decimal.Zero, Tax: decimal.Zero, Discount: decimal.Zero}, nil
}

// generateOrderNumber returns ORD + YYYYMMDD + a 6 digit random suffix.
func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%s%06d", now.Format("20060102"), rand.Intn(1_000_000))
}

// normalizeItems validates the requested lines and returns them sorted by
// product id, the order in which stock is reserved.
func normalizeItems(items []ItemRequest, maxItems int) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, database.ErrEmptyOrder
	}
	if maxItems > 0 && len(items) > maxItems {
		return nil, fmt.Errorf("%w: %d > %d", database.ErrTooManyItems, len(items), maxItems)
	}

	seen := make(map[int64]bool, len(items))
	sorted := make([]ItemRequest, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d", database.ErrInvalidQuantity, item.ProductID)
		}
		if seen[item.ProductID] {
			return nil, fmt.Errorf("%w: product %d", database.ErrDuplicateItem, item.ProductID)
		}
		seen[item.ProductID] = true
		sorted = append(sorted, item)
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})

	return sorted, nil
}

// CreateOrder validates the request, reserves stock for every line and
// writes the order in a single transaction. Either every reservation and
// row commits or none does.
func (s *Service) CreateOrder(ctx context.Context, userID int64, req CreateOrderRequest) (*models.Order, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.Int64("user_id", userID))

	order, err := s.createOrder(ctx, userID, req)
	if err != nil {
		metrics.OrderCreateFailures.WithLabelValues(failureReason(err)).Inc()
		log.Info("order rejected", zap.Error(err))
		return nil, err
	}

	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	metrics.OrdersCreated.Inc()
	metrics.StockReservedUnits.Add(float64(units))
	s.publish(ctx, events.TypeOrderCreated, "", order)

	log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Time("payment_deadline", order.PaymentDeadline))

	return order, nil
}

func (s *Service) createOrder(ctx context.Context, userID int64, req CreateOrderRequest) (*models.Order, error) {
	items, err := normalizeItems(req.Items, s.cfg.MaxItems)
	if err != nil {
		return nil, err
	}

	result, err := s.validator.Validate(ctx, req.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("validate address: %w", err)
	}
	if !result.IsValid {
		return nil, fmt.Errorf("%w: %s", database.ErrInvalidAddress, strings.Join(result.Problems, "; "))
	}

	var order *models.Order

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		exists, err := store.UserExists(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return database.ErrUserNotFound
		}

		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ProductID
		}

		products, err := store.GetProductsByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}

		lines := make([]models.OrderItem, 0, len(items))
		subtotal := decimal.Zero
		for _, item := range items {
			product, ok := products[item.ProductID]
			if !ok || product.Status != models.ProductStatusActive {
				return fmt.Errorf("%w: product %d", database.ErrProductUnavailable, item.ProductID)
			}

			if err := store.ReserveStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, database.ErrInsufficientStock) {
					return fmt.Errorf("%w: product %d", err, item.ProductID)
				}
				return err
			}

			lineTotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			lines = append(lines, models.OrderItem{
				ProductID:  item.ProductID,
				Quantity:   item.Quantity,
				UnitPrice:  product.Price,
				TotalPrice: lineTotal,
				ProductSnapshot: models.ProductSnapshot{
					ProductID: product.ID,
					SKU:       product.SKU,
					Name:      product.Name,
					Price:     product.Price,
				},
			})
		}

		charges, err := s.pricer.Quote(ctx, subtotal, result.Standardized, lines)
		if err != nil {
			return fmt.Errorf("quote charges: %w", err)
		}
		total := subtotal.Add(charges.ShippingFee).Add(charges.Tax).Sub(charges.Discount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		now := s.clock()
		params := store.InsertOrderParams{
			UserID:          userID,
			Subtotal:        subtotal,
			ShippingFee:     charges.ShippingFee,
			Tax:             charges.Tax,
			Discount:        charges.Discount,
			Total:           total,
			ShippingAddress: result.Standardized,
			Notes:           req.Notes,
			PaymentMethod:   req.PaymentMethod,
			PaymentDeadline: now.Add(s.cfg.PaymentWindow),
			CreatedAt:       now,
		}

		var orderID int64
		inserted := false
		for attempt := 0; attempt < maxOrderNumberAttempts && !inserted; attempt++ {
			params.OrderNumber = generateOrderNumber(now)
			orderID, inserted, err = store.InsertOrder(ctx, tx, params)
			if err != nil {
				return err
			}
		}
		if !inserted {
			return database.ErrOrderNumberExhausted
		}

		for i := range lines {
			lines[i].OrderID = orderID
			if err := store.InsertOrderItem(ctx, tx, &lines[i]); err != nil {
				return err
			}
		}

		order, err = store.GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// failureReason maps an order-creation error to a low-cardinality label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, database.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, database.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, database.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, database.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, database.ErrEmptyOrder),
		errors.Is(err, database.ErrTooManyItems),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrDuplicateItem):
		return "invalid_request"
	case errors.Is(err, database.ErrOrderNumberExhausted):
		return "order_number_exhausted"
	default:
		return "internal"
	}
}
