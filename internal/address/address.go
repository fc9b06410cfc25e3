// Package address validates and normalizes shipping addresses before an
// order is allowed to snapshot them.
package address

import (
	"context"
	"regexp"
	"strings"

	"github.com/safar/order-engine/internal/models"
)

// Result is what a validation backend reports for one address.
type Result struct {
	IsValid      bool
	Problems     []string
	Standardized models.ShippingAddress
}

// Validator is implemented by address-validation backends. A returned error
// means the backend itself failed, not that the address is bad.
type Validator interface {
	Validate(ctx context.Context, addr models.ShippingAddress) (Result, error)
}

var (
	postalCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 \-]{1,9}$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,19}$`)
	countryPattern    = regexp.MustCompile(`^[A-Z]{2}$`)
	spaces            = regexp.MustCompile(`\s+`)
)

// BasicValidator checks required fields and formats locally. It is the
// default when no external validation service is configured.
type BasicValidator struct{}

func (BasicValidator) Validate(_ context.Context, addr models.ShippingAddress) (Result, error) {
	std := models.ShippingAddress{
		RecipientName: clean(addr.RecipientName),
		Phone:         clean(addr.Phone),
		Line1:         clean(addr.Line1),
		Line2:         clean(addr.Line2),
		City:          clean(addr.City),
		State:         clean(addr.State),
		PostalCode:    strings.ToUpper(clean(addr.PostalCode)),
		Country:       strings.ToUpper(clean(addr.Country)),
	}

	var problems []string
	required := []struct {
		name  string
		value string
	}{
		{"recipient_name", std.RecipientName},
		{"phone", std.Phone},
		{"line1", std.Line1},
		{"city", std.City},
		{"postal_code", std.PostalCode},
		{"country", std.Country},
	}
	for _, f := range required {
		if f.value == "" {
			problems = append(problems, f.name+" is required")
		}
	}

	if std.PostalCode != "" && !postalCodePattern.MatchString(std.PostalCode) {
		problems = append(problems, "postal_code is malformed")
	}
	if std.Phone != "" && !phonePattern.MatchString(std.Phone) {
		problems = append(problems, "phone is malformed")
	}
	if std.Country != "" && !countryPattern.MatchString(std.Country) {
		problems = append(problems, "country must be an ISO 3166-1 alpha-2 code")
	}

	return Result{
		IsValid:      len(problems) == 0,
		Problems:     problems,
		Standardized: std,
	}, nil
}

func clean(s string) string {
	return spaces.ReplaceAllString(strings.TrimSpace(s), " ")
}
