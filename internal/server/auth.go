package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TribeHeader carries the acting tribe when bearer tokens are not in use.
const TribeHeader = "X-Tribe"

// IdentityConfig controls how the acting tribe is read from requests. There
// is no authorization model: identity only names who is booking.
type IdentityConfig struct {
	// JWTSecret enables HS256 bearer tokens. Empty rejects Authorization headers.
	JWTSecret string
	Log       *zap.Logger
}

type Identity struct {
	Tribe  string
	Source string
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// tribeFromContext returns the acting tribe or a 401 envelope.
func tribeFromContext(ctx context.Context) (string, huma.StatusError) {
	if id, ok := identityFromContext(ctx); ok && id.Tribe != "" {
		return id.Tribe, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "acting tribe required: send "+TribeHeader+" or a bearer token", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Tribe string `json:"tribe,omitempty"`
}

// tribeFromJWT prefers the tribe claim and falls back to the subject.
func tribeFromJWT(token, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	tribe := strings.TrimSpace(claims.Tribe)
	if tribe == "" {
		tribe = strings.TrimSpace(claims.Subject)
	}
	if tribe == "" {
		return "", errors.New("tribe or subject claim required")
	}
	return tribe, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newIdentityMiddleware attaches the acting tribe when the request names one.
// Anonymous requests pass through; handlers that write ask for the tribe.
func newIdentityMiddleware(cfg IdentityConfig) func(http.Handler) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				tribe, err := tribeFromJWT(token, cfg.JWTSecret)
				if err != nil {
					log.Debug("bearer token rejected", zap.Error(err))
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), Identity{Tribe: tribe, Source: "jwt"})))
				return
			}
			if tribe := strings.TrimSpace(req.Header.Get(TribeHeader)); tribe != "" {
				next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), Identity{Tribe: tribe, Source: "header"})))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
