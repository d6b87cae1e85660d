// Package auth signs users in with Gmail addresses and issues the session
// tokens the gateway accepts as bearer credentials.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the signed-in user a request acts for.
type Principal struct {
	UserID string
	Email  string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// QueryTokenParam carries the session token on WebSocket upgrades.
const QueryTokenParam = "token"

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// TokenFromRequest returns the bearer token, falling back to the
// QueryTokenParam query value when allowQuery is set. The header wins when
// both are present.
func TokenFromRequest(r *http.Request, allowQuery bool) (string, bool) {
	if tok, ok := ParseBearer(r); ok {
		return tok, true
	}
	if !allowQuery {
		return "", false
	}
	tok := strings.TrimSpace(r.URL.Query().Get(QueryTokenParam))
	return tok, tok != ""
}
