// Package auth guards the trial execution endpoints with a shared secret.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/bcrosbie/skillbench/internal/domain"
)

const (
	// MinSecretLength is the shortest execution secret that enables the
	// execution endpoints.
	MinSecretLength = 32

	HeaderToken         = "x-skillbench-token"
	HeaderAuthorization = "authorization"
)

type Authorizer struct {
	secret []byte
}

func New(secret string) *Authorizer {
	return &Authorizer{secret: []byte(strings.TrimSpace(secret))}
}

// Configured reports whether the secret is long enough to enable execution.
func (a *Authorizer) Configured() bool {
	return a != nil && len(a.secret) >= MinSecretLength
}

// Check compares token with the secret in constant time. An unconfigured
// secret is execution_not_configured, a missing or wrong token is forbidden.
func (a *Authorizer) Check(token string) error {
	if !a.Configured() {
		return domain.ExecutionNotConfigured("trial execution is disabled: execution secret is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Forbidden("execution token is missing")
	}
	if subtle.ConstantTimeCompare([]byte(token), a.secret) != 1 {
		return domain.Forbidden("execution token is invalid")
	}
	return nil
}

type decisionKey struct{}

type decision struct {
	err error
}

// Authorize checks token once per request. The decision is cached in the
// returned context; later calls with that context reuse it.
func (a *Authorizer) Authorize(ctx context.Context, token string) (context.Context, error) {
	if cached, ok := ctx.Value(decisionKey{}).(decision); ok {
		return ctx, cached.err
	}
	err := a.Check(token)
	return context.WithValue(ctx, decisionKey{}, decision{err: err}), err
}

// Require returns the cached decision for ctx, or forbidden when the request
// was never authorized.
func Require(ctx context.Context) error {
	cached, ok := ctx.Value(decisionKey{}).(decision)
	if !ok {
		return domain.Forbidden("request was not authorized for trial execution")
	}
	return cached.err
}

// TokenFromHeaders prefers the dedicated token header and falls back to a
// bearer Authorization header.
func TokenFromHeaders(tokenHeader, authorization string) string {
	if token := strings.TrimSpace(tokenHeader); token != "" {
		return token
	}
	authorization = strings.TrimSpace(authorization)
	const bearer = "bearer "
	if len(authorization) > len(bearer) && strings.EqualFold(authorization[:len(bearer)], bearer) {
		return strings.TrimSpace(authorization[len(bearer):])
	}
	return ""
}
