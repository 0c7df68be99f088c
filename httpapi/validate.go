package httpapi

import (
	"fmt"

	"ragbackend/ragerrors"
)

// Bounds grounded on original_source's guard.py, which rejects the
// same request shape before it ever reaches retrieval or generation.
const (
	topKMin          = 1
	topKMax          = 50
	maxCtxMin        = 100
	maxCtxMax        = 4096
	maxTokensMin     = 1
	maxTokensMax     = 4096
	temperatureMin   = 0.0
	temperatureMax   = 1.0
)

func validateQueryBounds(topK, maxCtx int) error {
	if topK != 0 && (topK < topKMin || topK > topKMax) {
		return ragerrors.New(ragerrors.ValidationError, fmt.Sprintf("top_k must be between %d and %d", topKMin, topKMax))
	}
	if maxCtx != 0 && (maxCtx < maxCtxMin || maxCtx > maxCtxMax) {
		return ragerrors.New(ragerrors.ValidationError, fmt.Sprintf("max_ctx must be between %d and %d", maxCtxMin, maxCtxMax))
	}
	return nil
}

func validateAnswerBounds(req answerRequest) error {
	if err := validateQueryBounds(req.TopK, req.MaxCtx); err != nil {
		return err
	}
	if req.MaxTokens != 0 && (req.MaxTokens < maxTokensMin || req.MaxTokens > maxTokensMax) {
		return ragerrors.New(ragerrors.ValidationError, fmt.Sprintf("max_tokens must be between %d and %d", maxTokensMin, maxTokensMax))
	}
	if req.Temperature != 0 && (req.Temperature < temperatureMin || req.Temperature > temperatureMax) {
		return ragerrors.New(ragerrors.ValidationError, fmt.Sprintf("temperature must be between %.0f and %.0f", temperatureMin, temperatureMax))
	}
	return nil
}
