package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = strings.Repeat("s", MinSecretLength)

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		token  string
		code   domain.ErrorCode
	}{
		{name: "valid", secret: secret, token: secret},
		{name: "short secret", secret: "too-short", token: "too-short", code: domain.CodeExecutionNotConfigured},
		{name: "empty secret", secret: "", token: "", code: domain.CodeExecutionNotConfigured},
		{name: "missing token", secret: secret, token: "", code: domain.CodeForbidden},
		{name: "wrong token", secret: secret, token: strings.Repeat("x", MinSecretLength), code: domain.CodeForbidden},
		{name: "prefix of secret", secret: secret, token: secret[:10], code: domain.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.secret).Check(tt.token)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, domain.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestAuthorizeCachesDecision(t *testing.T) {
	a := New(secret)

	ctx, err := a.Authorize(context.Background(), secret)
	require.NoError(t, err)
	require.NoError(t, Require(ctx))

	// The cached decision wins over a later token for the same request.
	_, err = a.Authorize(ctx, "wrong")
	assert.NoError(t, err)

	denied, err := a.Authorize(context.Background(), "wrong")
	require.Error(t, err)
	assert.True(t, domain.HasCode(Require(denied), domain.CodeForbidden))
}

func TestRequireWithoutDecision(t *testing.T) {
	err := Require(context.Background())
	assert.True(t, domain.HasCode(err, domain.CodeForbidden))
}

func TestTokenFromHeaders(t *testing.T) {
	assert.Equal(t, "abc", TokenFromHeaders("abc", "Bearer other"))
	assert.Equal(t, "other", TokenFromHeaders("", "Bearer other"))
	assert.Equal(t, "other", TokenFromHeaders(" ", "bearer   other "))
	assert.Equal(t, "", TokenFromHeaders("", "Basic dXNlcg=="))
	assert.Equal(t, "", TokenFromHeaders("", "Bearer "))
}
