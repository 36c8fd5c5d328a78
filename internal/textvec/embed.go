// Package textvec turns free text into fixed-size hashed bag-of-words vectors
// and token sets used for skill retrieval.
package textvec

import (
	"math"
	"strings"
	"unicode"
)

// Dimensions is the fixed length of every embedding vector.
const Dimensions = 96

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// Vector is a unit-normalised embedding, or the zero vector for text without
// tokens.
type Vector []float64

// Tokens lowercases text, treats '_' and '-' as separators, strips every
// other non-alphanumeric rune and drops single-character tokens. Order and
// duplicates are preserved.
func Tokens(text string) []string {
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			builder.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(r)
		}
	}

	fields := strings.Fields(builder.String())
	out := fields[:0]
	for _, field := range fields {
		if len([]rune(field)) <= 1 {
			continue
		}
		out = append(out, field)
	}
	return out
}

func hashToken(token string) uint32 {
	hash := fnvOffset32
	for i := 0; i < len(token); i++ {
		hash ^= uint32(token[i])
		hash *= fnvPrime32
	}
	return hash
}

// Embed returns the deterministic embedding of text.
func Embed(text string) Vector {
	vector := make(Vector, Dimensions)
	for _, token := range Tokens(text) {
		vector[hashToken(token)%Dimensions]++
	}
	return vector.normalized()
}

// EmbedFields embeds the concatenation of several text fields.
func EmbedFields(fields ...string) Vector {
	return Embed(strings.Join(fields, " "))
}

// Magnitude is the Euclidean norm of v.
func (v Vector) Magnitude() float64 {
	var sum float64
	for _, value := range v {
		sum += value * value
	}
	return math.Sqrt(sum)
}

// IsZero reports whether v has no weight, which happens for token-less text.
func (v Vector) IsZero() bool {
	return v.Magnitude() == 0
}

func (v Vector) normalized() Vector {
	magnitude := v.Magnitude()
	if magnitude == 0 {
		return v
	}
	for i := range v {
		v[i] /= magnitude
	}
	return v
}

// CosineSimilarity is clamped to [0,1]. Vectors of different length or with
// zero magnitude have similarity 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

func clamp01(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
