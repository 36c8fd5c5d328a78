package domain

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{InvalidArgument("bad"), http.StatusBadRequest},
		{Forbidden("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{IntegrityViolation("corrupt"), http.StatusConflict},
		{NoRecommendableSkill("none"), http.StatusConflict},
		{InvalidContainerContract("unpinned", nil), http.StatusUnprocessableEntity},
		{Upstream("executor", nil), http.StatusBadGateway},
		{ExecutionNotConfigured("off"), http.StatusServiceUnavailable},
		{SchemaUnavailable("missing", nil), http.StatusServiceUnavailable},
		{OrchestrationTimeout("slow", nil), http.StatusGatewayTimeout},
		{Internal("boom", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := errors.Wrap(SchemaUnavailable("failed to connect to postgres", cause), "store open")

	typed, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeSchemaUnavailable, typed.Code)
	assert.True(t, HasCode(wrapped, CodeSchemaUnavailable))
	assert.False(t, HasCode(wrapped, CodeInternal))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "schema_unavailable: failed to connect to postgres (connection refused)", typed.Error())

	_, ok = AsAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, HasCode(nil, CodeInternal))
}
