package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/service"
)

var errUnauthenticated = errors.New("unauthenticated")

type actorKey struct{}

func withActor(ctx context.Context, a service.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func actorFrom(ctx context.Context) service.Actor {
	a, _ := ctx.Value(actorKey{}).(service.Actor)
	return a
}

// bearerToken prefers the Authorization header and falls back to the
// access_token query parameter, which EventSource and browser WebSocket
// clients need.
func bearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// parseSubject validates an HS256 token and returns its subject.
func (s *Server) parseSubject(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: missing bearer token", errUnauthenticated)
	}
	if len(s.secret) == 0 {
		return "", fmt.Errorf("%w: token verification is not configured", errUnauthenticated)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: token has no subject", errUnauthenticated)
	}
	return claims.Subject, nil
}

// authenticate resolves the caller and their role before any protected route.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.parseSubject(bearerToken(r))
		if err != nil {
			writeErrorStatus(w, http.StatusUnauthorized, "unauthenticated", nil)
			return
		}
		role := repository.RoleCustomer
		if s.admins[userID] {
			role = repository.RoleAdmin
		} else if s.svc != nil {
			if role, err = s.svc.Profiles.Role(r.Context(), userID); err != nil {
				s.writeError(w, r, fmt.Errorf("resolve role: %w", err))
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), service.Actor{UserID: userID, Role: role})))
	})
}
