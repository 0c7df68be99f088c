package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_SameInputsSameHash(t *testing.T) {
	a := Fingerprint("tenant-1", "What is RAG?", 5, false, 2048, "gpt-4o-mini")
	b := Fingerprint("tenant-1", "What is RAG?", 5, false, 2048, "gpt-4o-mini")
	assert.Equal(t, a, b)
}

func TestFingerprint_NormalizesWhitespaceAndCase(t *testing.T) {
	a := Fingerprint("tenant-1", "What   is   RAG?", 5, false, 2048, "gpt-4o-mini")
	b := Fingerprint("tenant-1", "what is rag?", 5, false, 2048, "gpt-4o-mini")
	assert.Equal(t, a, b)
}

func TestFingerprint_DifferentTenantsDiffer(t *testing.T) {
	a := Fingerprint("tenant-1", "same query", 5, false, 2048, "gpt-4o-mini")
	b := Fingerprint("tenant-2", "same query", 5, false, 2048, "gpt-4o-mini")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_DifferentParamsDiffer(t *testing.T) {
	base := Fingerprint("tenant-1", "same query", 5, false, 2048, "gpt-4o-mini")
	cases := []string{
		Fingerprint("tenant-1", "same query", 10, false, 2048, "gpt-4o-mini"),
		Fingerprint("tenant-1", "same query", 5, true, 2048, "gpt-4o-mini"),
		Fingerprint("tenant-1", "same query", 5, false, 4096, "gpt-4o-mini"),
		Fingerprint("tenant-1", "same query", 5, false, 2048, "gpt-4o"),
	}
	for _, c := range cases {
		assert.NotEqual(t, base, c)
	}
}
