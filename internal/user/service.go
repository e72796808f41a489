package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	CreateUser(ctx context.Context, in CreateInput) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// ToggleAvailability soft-deletes an active user or restores a deleted one.
	ToggleAvailability(ctx context.Context, id uuid.UUID) (*User, error)
	// SeedSuperAdmin creates the super-admin described by in unless one already exists.
	SeedSuperAdmin(ctx context.Context, in CreateInput) (created bool, err error)
}

type service struct {
	repo       Repository
	db         db.DBTX
	validate   *validator.Validate
	bcryptCost int
}

func NewService(repo Repository, pool db.DBTX) Service {
	return &service{
		repo:       repo,
		db:         pool,
		validate:   validator.New(),
		bcryptCost: bcrypt.DefaultCost,
	}
}

func (s *service) CreateUser(ctx context.Context, in CreateInput) (*User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "user.CreateUser", "invalid user", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash password")
		return nil, fmt.Errorf("service: failed to hash password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}

	u := &User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hashedPassword),
		Role:         role,
	}

	if err := s.repo.Create(ctx, s.db, u); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("service: failed to create user in repository")
		return nil, fmt.Errorf("service: failed to create user: %w", err)
	}

	log.Info().Stringer("user_id", u.ID).Stringer("role", u.Role).Msg("service: user created")
	return u, nil
}

func (s *service) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("user_id", id).Msg("service: user not found by id")
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to fetch user by id")
		return nil, fmt.Errorf("service: failed to fetch user by id: %w", err)
	}
	return u, nil
}

func (s *service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx, s.db)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list users")
		return nil, fmt.Errorf("service: failed to list users: %w", err)
	}
	return users, nil
}

func (s *service) ToggleAvailability(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.ToggleAvailability(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("user_id", id).Msg("service: user not found for availability toggle")
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to toggle user availability")
		return nil, fmt.Errorf("service: failed to toggle user availability: %w", err)
	}

	log.Info().Stringer("user_id", id).Bool("is_deleted", u.IsDeleted).Msg("service: user availability toggled")
	return u, nil
}

func (s *service) SeedSuperAdmin(ctx context.Context, in CreateInput) (bool, error) {
	exists, err := s.repo.ExistsWithRole(ctx, s.db, RoleSuperAdmin)
	if err != nil {
		return false, fmt.Errorf("service: failed to check for super admin: %w", err)
	}
	if exists {
		log.Debug().Msg("service: super admin already present, skipping seed")
		return false, nil
	}

	in.Role = RoleSuperAdmin
	u, err := s.CreateUser(ctx, in)
	if err != nil {
		// Another instance may have seeded concurrently.
		if errors.Is(err, ErrEmailExists) {
			log.Warn().Str("email", in.Email).Msg("service: super admin email already taken")
			return false, nil
		}
		return false, err
	}

	log.Info().Stringer("user_id", u.ID).Msg("service: super admin seeded")
	return true, nil
}
