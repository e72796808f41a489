package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsDeleted: u.IsDeleted,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type UserHandler struct {
	service  user.Service
	auth     *Authenticator
	validate *validator.Validate
}

func NewUserHandler(service user.Service, auth *Authenticator) *UserHandler {
	return &UserHandler{
		service:  service,
		auth:     auth,
		validate: newValidator(),
	}
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Get("/users/me", h.handleGetMe)

		r.Group(func(admin chi.Router) {
			admin.Use(RequireRole(user.RoleSuperAdmin))
			admin.Get("/users", h.handleListUsers)
			admin.Post("/users", h.handleCreateUser)
			admin.Patch("/users/{id}/availability", h.handleToggleAvailability)
		})
	})
}

func (h *UserHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var requestPayload user.CreateInput
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	createdUser, err := h.service.CreateUser(r.Context(), requestPayload)
	if err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			respondWithError(w, http.StatusConflict, "Email already exists")
			return
		}
		respondWithServiceError(w, err, "Failed to create user")
		return
	}

	respondWithJSON(w, http.StatusCreated, newUserResponse(createdUser))
}

func (h *UserHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to list users")
		return
	}

	response := make([]UserResponse, 0, len(users))
	for i := range users {
		response = append(response, newUserResponse(&users[i]))
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *UserHandler) handleToggleAvailability(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	toggled, err := h.service.ToggleAvailability(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to toggle user availability")
		return
	}

	respondWithJSON(w, http.StatusOK, newUserResponse(toggled))
}

func (h *UserHandler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	foundUser, err := h.service.GetUserByID(r.Context(), p.UserID)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", p.UserID).Msg("Failed to get current user via service")
		respondWithServiceError(w, err, "Failed to get user")
		return
	}

	respondWithJSON(w, http.StatusOK, newUserResponse(foundUser))
}
