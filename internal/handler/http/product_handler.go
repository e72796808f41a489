package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type RestockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type ProductHandler struct {
	service  product.Service
	auth     *Authenticator
	validate *validator.Validate
}

func NewProductHandler(service product.Service, auth *Authenticator) *ProductHandler {
	return &ProductHandler{
		service:  service,
		auth:     auth,
		validate: newValidator(),
	}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
	router.Get("/products/{id}", h.handleGetProduct)

	router.Group(func(admin chi.Router) {
		admin.Use(h.auth.Authenticate, RequireRole(user.RoleSuperAdmin))
		admin.Post("/products", h.handleCreateProduct)
		admin.Patch("/products/{id}", h.handleUpdateProduct)
		admin.Patch("/products/{id}/availability", h.handleToggleAvailability)
		admin.Post("/products/{id}/stock", h.handleRestock)
	})
}

func (h *ProductHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListAvailable(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to list products")
		return
	}
	if products == nil {
		products = []product.Product{}
	}
	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get product")
		return
	}
	// Soft-deleted products stay reachable for orders but not for browsing.
	if p.IsDeleted {
		respondWithError(w, http.StatusNotFound, product.ErrNotFound.Message)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var requestPayload product.CreateInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateProduct(r.Context(), requestPayload)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create product")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload product.UpdateInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.UpdateProduct(r.Context(), productID, requestPayload)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update product")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) handleToggleAvailability(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.ToggleAvailability(r.Context(), productID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to toggle product availability")
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload RestockRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	p, err := h.service.Restock(r.Context(), productID, requestPayload.Delta)
	if err != nil {
		respondWithServiceError(w, err, "Failed to restock product")
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}
