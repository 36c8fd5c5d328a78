package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindSyntheticMarker(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		marker string
		found  bool
	}{
		{name: "clean path", value: "s3://benchmarks/run-17/trial.tar.gz", found: false},
		{name: "plain marker", value: "artifacts/mock-run", marker: "mock", found: true},
		{name: "case insensitive", value: "Synthetic data", marker: "synthetic", found: true},
		{name: "percent encoded", value: "artifacts/%66allback/out", marker: "fallback", found: true},
		{name: "double encoded", value: "artifacts/%2566ixture", marker: "fixture", found: true},
		{name: "empty", value: "", found: false},
		{name: "invalid escape alone", value: "notes%zz", found: false},
		{name: "trailing percent", value: "notes 100%", found: false},
		{name: "encoded marker beside invalid escape", value: "runs/mo%63k/out%zz", marker: "mock", found: true},
		{name: "double encoded beside invalid escape", value: "%zz/artifacts/%2566ixture", marker: "fixture", found: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker, found := FindSyntheticMarker(tt.value)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.marker, marker)
		})
	}
}

func TestHasSyntheticMarker(t *testing.T) {
	assert.False(t, HasSyntheticMarker("artifacts/run-1", "all checks passed"))
	assert.True(t, HasSyntheticMarker("artifacts/run-1", "generated from seed data"))
}
