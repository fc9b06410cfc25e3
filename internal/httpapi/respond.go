package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/auth"
	"github.com/safar/order-engine/internal/catalog"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/logger"
	"github.com/safar/order-engine/internal/redisx"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{database.ErrEmptyOrder, http.StatusBadRequest, "empty_order"},
	{database.ErrTooManyItems, http.StatusBadRequest, "too_many_items"},
	{database.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{database.ErrDuplicateItem, http.StatusBadRequest, "duplicate_item"},
	{database.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
	{database.ErrInvalidPayment, http.StatusBadRequest, "invalid_payment"},
	{database.ErrInvalidShipment, http.StatusBadRequest, "invalid_shipment"},
	{database.ErrInvalidCursor, http.StatusBadRequest, "invalid_cursor"},
	{catalog.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{auth.ErrMissingToken, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated"},
	{database.ErrForbidden, http.StatusForbidden, "forbidden"},
	{database.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{database.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{database.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{database.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{database.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
	{database.ErrInvalidOrderState, http.StatusConflict, "invalid_order_state"},
	{database.ErrOptimisticLockFailed, http.StatusConflict, "version_conflict"},
	{catalog.ErrDuplicate, http.StatusConflict, "duplicate"},
	{redisx.ErrRequestInFlight, http.StatusConflict, "request_in_flight"},
	{database.ErrProductUnavailable, http.StatusUnprocessableEntity, "product_unavailable"},
	{database.ErrAmountMismatch, http.StatusUnprocessableEntity, "amount_mismatch"},
	{database.ErrLockTimeout, http.StatusServiceUnavailable, "busy"},
}

// statusFor maps a service error to its HTTP status and machine code.
// Unknown errors are 500.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// respondServiceError writes err to the client. Internal errors are logged
// and their message is not exposed.
func respondServiceError(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context(), fallback).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondJSON(w, status, errorBody{Error: "internal server error", Code: code})
		return
	}
	respondJSON(w, status, errorBody{Error: err.Error(), Code: code})
}
