package devserver

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userKey contextKey = "user"

// TokenValidator is what the middleware needs from Auth.
type TokenValidator interface {
	ValidateToken(tokenString string) (Claims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
	repo      Repository
}

func NewAuthMiddleware(v TokenValidator, repo Repository) *AuthMiddleware {
	return &AuthMiddleware{validator: v, repo: repo}
}

// Handle accepts a bearer header, or the `token` query parameter that
// websocket clients use, and puts the current user in the request context.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Fields(authHeader)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		claims, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		u, err := am.repo.UserByID(r.Context(), claims.UserID)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) (User, bool) {
	u, ok := r.Context().Value(userKey).(User)
	return u, ok
}

// requireRole rejects authenticated users whose role is not listed.
func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := currentUser(r)
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		})
	}
}
