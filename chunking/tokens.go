package chunking

import "strings"

// CountTokens is the deterministic tokenizer shared by the chunker, the
// retrieval context builder, and the answer orchestrator's prompt
// budget accounting (spec §4.4: "Token counts computed by a
// deterministic tokenizer shared with the embedding/LLM budget
// accounting"). No BPE-equivalent tokenizer library exists anywhere in
// the example pack; this promotes the teacher's own
// knowledge.estimateTokenCount heuristic (word count plus a third of
// rune count, never less than the word count) into a standalone,
// exported function so every package measuring "tokens" uses the same
// notion of one.
func CountTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	words := strings.Fields(trimmed)
	wordCount := len(words)
	runeCount := len([]rune(trimmed))
	estimate := wordCount + runeCount/3
	if estimate < wordCount {
		estimate = wordCount
	}
	if estimate <= 0 {
		estimate = runeCount/2 + 1
	}
	return estimate
}
