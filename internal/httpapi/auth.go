// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/access"
)

// Claims are the bearer token claims issued by the account service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator turns bearer tokens into actors.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator for HS256 tokens signed with secret.
func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, oops.Code("JWT_SECRET_MISSING").Errorf("jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// Actor validates a raw token and returns the actor it names.
func (a *Authenticator) Actor(token string) (access.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return access.Actor{}, oops.Code("TOKEN_INVALID").Wrap(err)
	}

	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return access.Actor{}, oops.Code("TOKEN_INVALID").With("sub", claims.Subject).Wrap(err)
	}
	role, ok := access.ParseRole(claims.Role)
	if !ok {
		return access.Actor{}, oops.Code("TOKEN_INVALID").With("role", claims.Role).Errorf("unknown role")
	}
	return access.Actor{ID: id, Role: role}, nil
}

// Sign issues a token for actor. Used by the CLI to mint development tokens.
func (a *Authenticator) Sign(actor access.Actor, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Authenticate attaches the bearer token's actor to the request context.
// Requests without a token continue anonymously; a bad token is rejected.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "malformed Authorization header")
			return
		}
		actor, err := a.Actor(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(access.WithActor(r.Context(), actor)))
	})
}

// requireActor rejects anonymous requests.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFrom(r).IsAnonymous() {
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(r *http.Request) access.Actor {
	return access.ActorFromContext(r.Context())
}
