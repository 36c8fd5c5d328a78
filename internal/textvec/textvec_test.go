package textvec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	assert.Equal(t,
		[]string{"harden", "ci", "pipeline", "secrets", "v2"},
		Tokens("Harden CI_pipeline-secrets! a v2"),
	)
	assert.Empty(t, Tokens("  - _ ! a b "))
}

func TestEmbedIsDeterministicAndUnitLength(t *testing.T) {
	texts := []string{
		"harden our github actions ci pipeline secrets",
		"SQL migration operator",
		"x",
		"",
		"!!! ---",
	}
	for _, text := range texts {
		first := Embed(text)
		second := Embed(text)
		require.Len(t, first, Dimensions)
		assert.Equal(t, first, second, "embedding of %q must be deterministic", text)

		magnitude := first.Magnitude()
		if len(Tokens(text)) == 0 {
			assert.Zero(t, magnitude, "token-less text %q must embed to zero", text)
			continue
		}
		assert.InDelta(t, 1.0, magnitude, 1e-9, "embedding of %q must be unit length", text)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := Embed("rotate database credentials safely")
	b := Embed("safely rotate credentials for the database")

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
	assert.Greater(t, CosineSimilarity(a, b), 0.5)

	assert.Zero(t, CosineSimilarity(a, Embed("")))
	assert.Zero(t, CosineSimilarity(a, a[:10]))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestCosineSimilarityClampsNoise(t *testing.T) {
	v := []float64{1, 0, 0}
	assert.Equal(t, 1.0, CosineSimilarity(v, []float64{1 + 1e-17, 0, 0}))

	negative := CosineSimilarity([]float64{1, 0}, []float64{-1, 0})
	assert.Zero(t, negative)
	assert.False(t, math.IsNaN(negative))
}

func TestJaccard(t *testing.T) {
	a := Tokenize("ci pipeline secrets")
	b := Tokenize("secrets in the ci")

	assert.InDelta(t, 2.0/5.0, Jaccard(a, b), 1e-12)
	assert.Equal(t, Jaccard(a, b), Jaccard(b, a))
	assert.Zero(t, Jaccard(a, TokenSet{}))
	assert.Equal(t, 1.0, Jaccard(a, a))
}

func TestBlendLexical(t *testing.T) {
	assert.InDelta(t, 0.65, BlendLexical(1, 0), 1e-12)
	assert.InDelta(t, 0.35, BlendLexical(0, 1), 1e-12)
	assert.InDelta(t, 1.0, BlendLexical(1, 1), 1e-12)
}

func TestUnion(t *testing.T) {
	merged := Union(Tokenize("alpha beta"), Tokenize("beta gamma"))
	assert.Len(t, merged, 3)
}
