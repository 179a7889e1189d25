/*
auth.go - Bearer token authentication for mutating routes

PURPOSE:
  Every operation that changes a pay run, an account or a rate table is
  attributed to an actor. The actor comes from a HS256 JWT verified by
  jwtauth: claim "user_id" is the actor ID and claim "roles" its roles
  (a list of strings, or a single string).

SEE ALSO:
  - server.go: where the middleware is mounted
  - payrun/sources.go: role names checked on approval
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/jwtauth/v5"

	"github.com/warp/payroll-engine/payrun"
)

type actorKey struct{}

// NewJWTAuth builds the HS256 verifier shared by the router and token issuers.
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// RequireActor rejects requests without a valid token and stores the
// caller's payrun.Actor in the request context. It must run after
// jwtauth.Verifier.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
			return
		}
		if token == nil {
			writeError(w, http.StatusUnauthorized, "Invalid or missing token", nil)
			return
		}

		actor, ok := actorFromClaims(claims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Token has no user_id claim", nil)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects actors holding none of roles. It must run after
// RequireActor.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := actorFrom(r)
			for _, role := range roles {
				if actor.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden,
				fmt.Sprintf("Insufficient permissions: required one of '%s'", strings.Join(roles, "', '")), nil)
		})
	}
}

func actorFromClaims(claims map[string]any) (payrun.Actor, bool) {
	id, _ := claims["user_id"].(string)
	if id == "" {
		return payrun.Actor{}, false
	}
	actor := payrun.Actor{ID: id}
	switch roles := claims["roles"].(type) {
	case string:
		actor.Roles = []string{roles}
	case []string:
		actor.Roles = roles
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				actor.Roles = append(actor.Roles, s)
			}
		}
	}
	return actor, true
}

// actorFrom returns the actor set by RequireActor.
func actorFrom(r *http.Request) payrun.Actor {
	actor, _ := r.Context().Value(actorKey{}).(payrun.Actor)
	return actor
}

// IssueToken signs a token for actor. Used by tests and local tooling.
func IssueToken(ja *jwtauth.JWTAuth, actor payrun.Actor) (string, error) {
	_, token, err := ja.Encode(map[string]any{
		"user_id": actor.ID,
		"roles":   actor.Roles,
	})
	return token, err
}
