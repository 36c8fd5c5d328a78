package orchestrate

import (
	"strings"
	"testing"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContainerImage(t *testing.T) {
	digest := strings.Repeat("0f", 32)
	tests := []struct {
		image string
		valid bool
	}{
		{image: "ghcr.io/skillbench/ci-hardening@sha256:" + digest, valid: true},
		{image: "skillbench/runner@sha256:" + digest, valid: true},
		{image: "registry.example.com/team/sub/case_1@sha256:" + digest, valid: true},
		{image: "ghcr.io/skillbench/ci-hardening:latest", valid: false},
		{image: "ghcr.io/skillbench/ci-hardening:v1@sha256:" + digest, valid: false},
		{image: "ubuntu@sha256:" + digest, valid: false},
		{image: "ghcr.io/skillbench/ci@sha256:" + digest[:63], valid: false},
		{image: "ghcr.io/skillbench/ci@sha512:" + digest + digest, valid: false},
		{image: "GHCR.io/Skillbench/ci@sha256:" + digest, valid: false},
		{image: "", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			canonical, err := ValidateContainerImage(tt.image)
			if !tt.valid {
				require.Error(t, err)
				assert.True(t, domain.HasCode(err, domain.CodeInvalidContainerContract))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sha256:"+digest, canonical.Digest().String())
		})
	}
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, 900, ClampTimeout(0, 900))
	assert.Equal(t, 120, ClampTimeout(120, 900))
	assert.Equal(t, MinTimeoutSeconds, ClampTimeout(5, 900))
	assert.Equal(t, MaxTimeoutSeconds, ClampTimeout(0, 100000))
	assert.Equal(t, MinTimeoutSeconds, ClampTimeout(0, 0))
}
