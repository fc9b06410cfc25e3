package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/models"
	"github.com/safar/order-engine/internal/store"
)

// PaymentDetails is an admin's record of an off-platform payment.
type PaymentDetails struct {
	Method          string          `json:"method"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	ReferenceNumber string          `json:"reference_number"`
	BankName        string          `json:"bank_name"`
	AccountName     string          `json:"account_name"`
	Notes           string          `json:"notes"`
}

func (d PaymentDetails) validate() error {
	if strings.TrimSpace(d.Method) == "" {
		return fmt.Errorf("%w: method is required", database.ErrInvalidPayment)
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", database.ErrInvalidPayment)
	}
	return nil
}

// ConfirmPayment records a payment against a PENDING order and moves it to
// PAID. The amount must match the order total within the configured
// tolerance; on any rejection nothing is written.
func (s *Service) ConfirmPayment(ctx context.Context, id int64, details PaymentDetails, adminID int64) (*models.Order, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	epsilon := decimal.NewFromFloat(s.cfg.AmountEpsilon)
	method := strings.TrimSpace(details.Method)

	return s.run(ctx, id, transition{
		event: EventConfirmPayment,
		actor: adminActor(adminID),
		note:  fmt.Sprintf("%s %s ref=%s", method, details.Amount.StringFixed(2), details.ReferenceNumber),
		guard: func(order *models.Order, _ time.Time) error {
			if order.PaymentStatus == models.PaymentStatusPaid {
				return database.ErrAlreadyPaid
			}
			if order.Status != models.OrderStatusPending || order.PaymentStatus != models.PaymentStatusPending {
				return fmt.Errorf("%w: order is %s/%s", database.ErrInvalidOrderState, order.Status, order.PaymentStatus)
			}
			if order.Total.Sub(details.Amount).Abs().GreaterThan(epsilon) {
				return fmt.Errorf("%w: paid %s, total %s", database.ErrAmountMismatch,
					details.Amount.StringFixed(2), order.Total.StringFixed(2))
			}
			return nil
		},
		apply: func(tx *sql.Tx, order *models.Order, u *store.StatusUpdate, now time.Time) error {
			paidAt := now
			if details.PaidAt != nil {
				paidAt = details.PaidAt.UTC().Truncate(time.Microsecond)
			}

			log := &models.PaymentLog{
				OrderID:         order.ID,
				Method:          method,
				Amount:          details.Amount,
				PaidAt:          paidAt,
				AdminID:         adminID,
				ReferenceNumber: details.ReferenceNumber,
				BankName:        details.BankName,
				AccountName:     details.AccountName,
				Notes:           details.Notes,
			}
			if err := store.InsertPaymentLog(ctx, tx, log); err != nil {
				return err
			}

			u.PaymentStatus = models.PaymentStatusPaid
			u.PaidAt = &paidAt
			u.PaymentMethod = &method
			return nil
		},
	})
}

// ListPayments returns the payment log of an order, oldest first.
func (s *Service) ListPayments(ctx context.Context, orderID int64) ([]models.PaymentLog, error) {
	if _, err := store.GetOrder(ctx, s.db, orderID); err != nil {
		return nil, err
	}
	return store.ListPaymentLogs(ctx, s.db, orderID)
}
