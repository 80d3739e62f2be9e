package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ShopperHeader carries the shopper id when no JWT secret is configured.
const ShopperHeader = "X-Shopper-ID"

var errUnauthenticated = errors.New("missing or invalid credentials")

type ctxKey int

const shopperKey ctxKey = iota

func withShopper(ctx context.Context, shopperID string) context.Context {
	return context.WithValue(ctx, shopperKey, shopperID)
}

// ShopperFromContext returns the authenticated shopper id, or "".
func ShopperFromContext(ctx context.Context) string {
	id, _ := ctx.Value(shopperKey).(string)
	return id
}

// Authenticator resolves the caller's shopper id. With a secret it expects an
// HS256 bearer token whose subject is the shopper id; without one it trusts
// the raw id supplied by the gateway.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) resolve(authorization, rawShopper string) (string, error) {
	if len(a.secret) == 0 {
		id := strings.TrimSpace(rawShopper)
		if id == "" {
			return "", errUnauthenticated
		}
		return id, nil
	}

	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return "", errUnauthenticated
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errUnauthenticated
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a resolvable shopper.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.resolve(r.Header.Get("Authorization"), r.Header.Get(ShopperHeader))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(withShopper(r.Context(), id)))
	})
}
