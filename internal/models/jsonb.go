package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ShippingAddress is stored as a JSONB snapshot on the order and is never
// updated after creation.
type ShippingAddress struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2,omitempty"`
	City          string `json:"city"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return marshalJSON(a)
}

func (a *ShippingAddress) Scan(src any) error {
	return scanJSON(src, a)
}

// ProductSnapshot is the copy of product data taken when the order was
// placed, so later product edits do not rewrite order history.
type ProductSnapshot struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

func (s ProductSnapshot) Value() (driver.Value, error) {
	return marshalJSON(s)
}

func (s *ProductSnapshot) Scan(src any) error {
	return scanJSON(src, s)
}

func marshalJSON(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
