package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/models"
)

type contextKey string

const ctxAccountKey contextKey = "account"

// Account is the authenticated identity placed into request context: the user
// row plus its wallet profile.
type Account struct {
	User    *models.User
	Profile *models.Profile
}

// TokenValidator checks a bearer token and returns the subject user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// AccountLoader resolves a user id into the full account. Implementations
// also bump the profile's last-activity timestamp.
type AccountLoader interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.User, *models.Profile, error)
}

// Auth authenticates requests with a Bearer JWT and sets the account into
// request context.
func Auth(validator TokenValidator, loader AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			userID, err := validator.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			user, profile, err := loader.GetAccount(r.Context(), userID)
			if err != nil {
				http.Error(w, `{"error":"account not found"}`, http.StatusUnauthorized)
				return
			}
			ctx := WithAccount(r.Context(), &Account{User: user, Profile: profile})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthOptional sets the account into context when a valid token is present
// and passes anonymous requests through untouched.
func AuthOptional(validator TokenValidator, loader AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := validator.ValidateToken(r.Context(), raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			user, profile, err := loader.GetAccount(r.Context(), userID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithAccount(r.Context(), &Account{User: user, Profile: profile})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-administrators. Must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := AccountFromCtx(r.Context())
		if acc == nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if !acc.User.IsAdmin {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccountFromCtx returns the authenticated account or nil.
func AccountFromCtx(ctx context.Context) *Account {
	acc, _ := ctx.Value(ctxAccountKey).(*Account)
	return acc
}

// WithAccount returns a context carrying the given account.
func WithAccount(ctx context.Context, acc *Account) context.Context {
	return context.WithValue(ctx, ctxAccountKey, acc)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
