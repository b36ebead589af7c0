package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kilianp07/ridefleet/core/model"
)

// Claims are the bearer token claims. Subject is the principal id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type principalKey struct{}

// PrincipalFrom returns the principal stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// IssueToken signs an HS256 token for p valid for ttl.
func IssueToken(secret []byte, p model.Principal, ttl time.Duration) (string, error) {
	if !p.Role.Valid() || p.ID == "" {
		return "", fmt.Errorf("principal %q/%q: %w", p.ID, p.Role, model.ErrInvalidArgument)
	}
	now := time.Now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies tok and returns its principal.
func ParseToken(secret []byte, tok string) (model.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return model.Principal{}, err
	}
	p := model.Principal{ID: claims.Subject, Role: model.Role(claims.Role)}
	if p.ID == "" || !p.Role.Valid() {
		return model.Principal{}, errors.New("token lacks a valid sub or role")
	}
	return p, nil
}

// authenticate rejects requests without a valid bearer token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tok == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing bearer token"})
			return
		}
		p, err := ParseToken(s.secret, tok)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func principal(r *http.Request) model.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}
