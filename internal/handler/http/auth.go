package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

// Principal is the authenticated caller taken from the bearer token.
type Principal struct {
	UserID uuid.UUID
	Role   user.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == user.RoleSuperAdmin
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator verifies HS256 bearer tokens carrying user_id, role and exp claims.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		principal, err := a.parse(tokenString)
		if err != nil {
			log.Warn().Err(err).Msg("Rejected bearer token")
			respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func (a *Authenticator) parse(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token claims")
	}

	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.FromString(rawID)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid user_id claim: %w", err)
	}

	role, _ := claims["role"].(string)
	switch user.Role(role) {
	case user.RoleUser, user.RoleSuperAdmin:
	default:
		return Principal{}, fmt.Errorf("invalid role claim %q", role)
	}

	return Principal{UserID: userID, Role: user.Role(role)}, nil
}

// RequireRole rejects authenticated callers whose role differs from role.
func RequireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}
			if p.Role != role {
				log.Warn().Stringer("user_id", p.UserID).Stringer("role", p.Role).Msg("Forbidden: insufficient role")
				respondWithError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
