package answer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint computes the cache key spec §4.11 step 1 names:
// hash(tenant_id, normalized_query, top_k, rerank, max_ctx_tokens,
// model). original_source hashed a single field; SPEC_FULL.md resolves
// that ambiguity in favor of the full tuple the spec text lists, so two
// requests differing only in top_k never collide on the same cached
// answer.
func Fingerprint(tenantID, query string, topK int, rerank bool, maxCtxTokens int, model string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	raw := fmt.Sprintf("%s\x00%s\x00%d\x00%t\x00%d\x00%s", tenantID, normalized, topK, rerank, maxCtxTokens, model)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
