package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/auth"
	"github.com/safar/order-engine/internal/catalog"
	"github.com/safar/order-engine/internal/logger"
	"github.com/safar/order-engine/internal/orders"
	"github.com/safar/order-engine/internal/redisx"
)

const (
	maxIdempotencyKeyLen = 128
	maxBodyBytes         = 1 << 20
)

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", catalog.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", catalog.ErrInvalidInput)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.ListProducts(r.Context(), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// createOrder honours an optional Idempotency-Key header: a replayed key
// returns the order created by the first request with 200.
func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)

	var req orders.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		respondServiceError(w, r, h.logger, fmt.Errorf("%w: Idempotency-Key too long", catalog.ErrInvalidInput))
		return
	}

	claimed := false
	if key != "" && h.idem != nil {
		orderID, ok, err := h.idem.Claim(ctx, p.UserID, key)
		switch {
		case errors.Is(err, redisx.ErrRequestInFlight):
			respondServiceError(w, r, h.logger, err)
			return
		case err != nil:
			// Redis is an optimisation here; the order is still created.
			logger.FromContext(ctx, h.logger).Warn("idempotency store unavailable", zap.Error(err))
		case !ok:
			order, err := h.orders.GetOrder(ctx, orderID, orders.Actor{UserID: p.UserID, Role: p.Role})
			if err != nil {
				respondServiceError(w, r, h.logger, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			respondJSON(w, http.StatusOK, order)
			return
		default:
			claimed = true
		}
	}

	order, err := h.orders.CreateOrder(ctx, p.UserID, req)
	if err != nil {
		if claimed {
			if aerr := h.idem.Abandon(ctx, p.UserID, key); aerr != nil {
				logger.FromContext(ctx, h.logger).Warn("release idempotency key failed", zap.Error(aerr))
			}
		}
		respondServiceError(w, r, h.logger, err)
		return
	}

	if claimed {
		if cerr := h.idem.Complete(ctx, p.UserID, key, order.ID); cerr != nil {
			logger.FromContext(ctx, h.logger).Warn("store idempotency key failed",
				zap.Int64("order_id", order.ID), zap.Error(cerr))
		}
	}

	respondJSON(w, http.StatusCreated, order)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	page, err := h.orders.ListOrders(r.Context(), p.UserID, r.URL.Query().Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	p := principal(r)

	order, err := h.orders.GetOrder(r.Context(), id, orders.Actor{UserID: p.UserID, Role: p.Role})
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(r, dst)
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	var req reasonRequest
	if err := decodeOptional(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), id, principal(r).UserID, req.Reason)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
