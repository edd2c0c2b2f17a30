package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
)

type userIDKey struct{}

// TokenVerifier validates a bearer token and returns the user it names.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// HS256Verifier checks Supabase-style access tokens signed with a shared
// secret. The subject must be a UUID.
type HS256Verifier struct {
	secret []byte
}

// NewHS256Verifier creates a verifier for secret.
func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

// Verify parses token and returns its subject.
func (v *HS256Verifier) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token string is empty")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("token is not valid")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("token subject %q is not a user id", claims.Subject)
	}
	return claims.Subject, nil
}

// authMiddleware rejects requests without a valid bearer token and stores the
// authenticated user on the context.
func authMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, apperr.New(apperr.CodeUnauthorized, "auth", "missing authorization header"))
				return
			}
			userID, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				writeError(w, apperr.Wrap(apperr.CodeUnauthorized, "auth", err))
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}
