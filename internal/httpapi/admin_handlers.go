package httpapi

import (
	"net/http"

	"github.com/safar/order-engine/internal/catalog"
	"github.com/safar/order-engine/internal/orders"
)

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	var req catalog.UpdateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

type adjustStockRequest struct {
	Delta           int `json:"delta"`
	ExpectedVersion int `json:"expected_version"`
}

func (h *handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	product, err := h.catalog.AdjustStock(r.Context(), id, req.Delta, req.ExpectedVersion, principal(r).UserID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	user, err := h.catalog.CreateUser(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (h *handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	var req orders.PaymentDetails
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	order, err := h.orders.ConfirmPayment(r.Context(), id, req, principal(r).UserID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *handler) shipOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	var req orders.ShipmentDetails
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	order, err := h.orders.ShipOrder(r.Context(), id, req, principal(r).UserID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	order, err := h.orders.CompleteOrder(r.Context(), id, principal(r).UserID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *handler) refundOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orders.RefundOrder(r.Context(), id, req.Reason, principal(r).UserID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	logs, err := h.orders.ListPayments(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": logs})
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.ListUsers(r.Context(), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	user, err := h.catalog.GetUser(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
