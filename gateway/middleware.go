// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"dealgate/platform/shared/identity"
	"dealgate/platform/shared/logger"
)

// AuthMiddleware validates the bearer token and stores the caller
// identity in the request context. Every AI route sits behind it.
func AuthMiddleware(secret []byte, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.New("gateway")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			caller, err := authenticate(r, secret)
			if err != nil {
				log.Warn("", requestID(r), "authentication failed", map[string]interface{}{
					"path":  r.URL.Path,
					"error": err.Error(),
				})
				writeError(w, http.StatusUnauthorized, ReasonAuthRequired, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), caller)))
		})
	}
}

func authenticate(r *http.Request, secret []byte) (*identity.Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errMissingToken
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadSigningMethod
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidToken
	}

	userID := getClaimString(claims, "user_id")
	if userID == "" {
		return nil, errMissingUserClaim
	}

	return &identity.Identity{
		UserID:         userID,
		OrganizationID: getClaimString(claims, "org_id"),
		Roles:          getClaimStringArray(claims, "role"),
		RequestID:      requestID(r),
		IPAddress:      clientIP(r),
		UserAgent:      r.UserAgent(),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

func getClaimStringArray(claims jwt.MapClaims, key string) []string {
	if val, ok := claims[key].(string); ok {
		if val == "" {
			return []string{}
		}
		return strings.Split(val, ",")
	}
	return []string{}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
