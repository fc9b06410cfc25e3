package address

import (
	"context"
	"testing"

	"github.com/safar/order-engine/internal/models"
)

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		RecipientName: "  Dana   Lee ",
		Phone:         "+1 555 0100",
		Line1:         "12 Harbor St",
		City:          "Portland",
		State:         "OR",
		PostalCode:    "97201",
		Country:       "us",
	}
}

func TestBasicValidatorStandardizes(t *testing.T) {
	res, err := BasicValidator{}.Validate(context.Background(), validAddress())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if !res.IsValid {
		t.Fatalf("Expected valid address, problems: %v", res.Problems)
	}
	if res.Standardized.RecipientName != "Dana Lee" {
		t.Errorf("Expected collapsed name, got %q", res.Standardized.RecipientName)
	}
	if res.Standardized.Country != "US" {
		t.Errorf("Expected upper-case country, got %q", res.Standardized.Country)
	}
}

func TestBasicValidatorRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ShippingAddress)
	}{
		{"missing line1", func(a *models.ShippingAddress) { a.Line1 = " " }},
		{"missing recipient", func(a *models.ShippingAddress) { a.RecipientName = "" }},
		{"bad country", func(a *models.ShippingAddress) { a.Country = "USA" }},
		{"bad phone", func(a *models.ShippingAddress) { a.Phone = "call me" }},
		{"bad postal code", func(a *models.ShippingAddress) { a.PostalCode = "#" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := validAddress()
			tt.mutate(&addr)

			res, err := BasicValidator{}.Validate(context.Background(), addr)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if res.IsValid {
				t.Error("Expected address to be rejected")
			}
			if len(res.Problems) == 0 {
				t.Error("Expected at least one problem")
			}
		})
	}
}
