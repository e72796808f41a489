package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type UpdateStatusRequest struct {
	Status order.Status `json:"status" validate:"required"`
}

type OrderHandler struct {
	service  order.Service
	auth     *Authenticator
	validate *validator.Validate
}

func NewOrderHandler(service order.Service, auth *Authenticator) *OrderHandler {
	return &OrderHandler{
		service:  service,
		auth:     auth,
		validate: newValidator(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Post("/orders/cod", h.handlePlaceCOD)
		r.Post("/orders/gateway", h.handlePlaceGateway)
		r.Get("/orders/verify", h.handleVerifyPayment)
		r.Get("/orders/me", h.handleListMyOrders)
		r.Get("/orders/{id}", h.handleGetOrder)

		r.Group(func(admin chi.Router) {
			admin.Use(RequireRole(user.RoleSuperAdmin))
			admin.Get("/orders", h.handleListOrders)
			admin.Patch("/orders/{id}/status", h.handleUpdateStatus)
			admin.Patch("/orders/{id}/lines/status", h.handleUpdateLineStatus)
		})
	})
}

func (h *OrderHandler) handlePlaceCOD(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var requestPayload order.PlaceOrderInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	placed, err := h.service.PlaceOrderCOD(r.Context(), p.UserID, requestPayload)
	if err != nil {
		respondWithServiceError(w, err, "Failed to place order")
		return
	}

	respondWithJSON(w, http.StatusCreated, placed)
}

func (h *OrderHandler) handlePlaceGateway(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var requestPayload order.PlaceOrderInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	placement, err := h.service.PlaceOrderGateway(r.Context(), p.UserID, requestPayload, clientIP(r))
	if err != nil {
		respondWithServiceError(w, err, "Failed to place order")
		return
	}

	respondWithJSON(w, http.StatusCreated, placement)
}

func (h *OrderHandler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	gatewayOrderID := r.URL.Query().Get("order_id")
	if gatewayOrderID == "" {
		respondWithError(w, http.StatusBadRequest, "order_id query parameter is required")
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), gatewayOrderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to verify payment")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *OrderHandler) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	orders, err := h.service.ListUserOrders(r.Context(), p.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	// Other buyers' orders are reported as missing.
	if o.UserID != p.UserID && !p.IsAdmin() {
		log.Warn().Stringer("order_id", orderID).Stringer("user_id", p.UserID).Msg("Order requested by a non-owner")
		respondWithError(w, http.StatusNotFound, order.ErrNotFound.Message)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), orderID, requestPayload.Status)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleUpdateLineStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload order.LineStatusInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.UpdateLineStatus(r.Context(), orderID, requestPayload)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order line status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}
