package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/cart"
)

type CartResponse struct {
	Items []cart.Line     `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func newCartResponse(c cart.Cart) CartResponse {
	return CartResponse{Items: c.Lines(), Total: c.Total()}
}

type CartHandler struct {
	service  cart.Service
	auth     *Authenticator
	validate *validator.Validate
}

func NewCartHandler(service cart.Service, auth *Authenticator) *CartHandler {
	return &CartHandler{
		service:  service,
		auth:     auth,
		validate: newValidator(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Get("/cart", h.handleGetCart)
		r.Post("/cart/items", h.handleAddItem)
		r.Patch("/cart/items", h.handleUpdateQuantity)
		r.Delete("/cart/items/{productId}/{size}", h.handleRemoveItem)
	})
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	c, err := h.service.GetCart(r.Context(), p.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get cart")
		return
	}

	respondWithJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var requestPayload cart.AddItemInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	c, err := h.service.AddItem(r.Context(), p.UserID, requestPayload)
	if err != nil {
		respondWithServiceError(w, err, "Failed to add item to cart")
		return
	}

	respondWithJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *CartHandler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var requestPayload cart.UpdateQuantityInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	c, err := h.service.UpdateQuantity(r.Context(), p.UserID, requestPayload)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update cart item")
		return
	}

	respondWithJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	productID, ok := parseUUIDParam(w, r, "productId")
	if !ok {
		return
	}

	c, err := h.service.RemoveItem(r.Context(), p.UserID, productID, chi.URLParam(r, "size"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to remove cart item")
		return
	}

	respondWithJSON(w, http.StatusOK, newCartResponse(c))
}
