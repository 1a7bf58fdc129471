package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// OwnerHeader carries the owner id when no JWT secret is configured.
const OwnerHeader = "X-Owner-ID"

type ownerKey struct{}

// ownerSlotKey carries a *string set up by Logging, which runs outside Auth
// and cannot see the context Auth derives.
type ownerSlotKey struct{}

// WithOwner returns a copy of ctx carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerID returns the authenticated owner stored by Auth.
func OwnerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey{}).(string)
	return id, ok && id != ""
}

// Auth resolves the calling owner. With a secret, a bearer HS256 token is
// required and its subject is the owner id. Without one, the X-Owner-ID
// header is trusted, which is only suitable for local development.
func Auth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				owner string
				err   error
			)
			if secret == "" {
				owner = strings.TrimSpace(r.Header.Get(OwnerHeader))
				if owner == "" {
					err = errors.New("missing " + OwnerHeader + " header")
				}
			} else {
				owner, err = ownerFromToken(bearerToken(r), key)
			}

			if err != nil {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Unauthorized")
				return
			}

			if slot, ok := r.Context().Value(ownerSlotKey{}).(*string); ok {
				*slot = owner
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	// Browsers cannot set headers on WebSocket upgrades.
	return r.URL.Query().Get("access_token")
}

func ownerFromToken(raw string, key []byte) (string, error) {
	if raw == "" {
		return "", errors.New("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
