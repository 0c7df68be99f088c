package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbackend/ragerrors"
)

func TestValidateQueryBounds_ZeroMeansUnset(t *testing.T) {
	assert.NoError(t, validateQueryBounds(0, 0))
}

func TestValidateQueryBounds_WithinRange(t *testing.T) {
	assert.NoError(t, validateQueryBounds(10, 1000))
}

func TestValidateQueryBounds_TopKOutOfRange(t *testing.T) {
	err := validateQueryBounds(topKMax+1, 0)
	require.Error(t, err)
	assert.Equal(t, ragerrors.ValidationError, ragerrors.KindOf(err))
}

func TestValidateQueryBounds_MaxCtxOutOfRange(t *testing.T) {
	err := validateQueryBounds(0, maxCtxMax+1)
	require.Error(t, err)
	assert.Equal(t, ragerrors.ValidationError, ragerrors.KindOf(err))
}

func TestValidateAnswerBounds_TemperatureOutOfRange(t *testing.T) {
	err := validateAnswerBounds(answerRequest{Temperature: temperatureMax + 1})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ValidationError, ragerrors.KindOf(err))
}

func TestValidateAnswerBounds_MaxTokensOutOfRange(t *testing.T) {
	err := validateAnswerBounds(answerRequest{MaxTokens: maxTokensMax + 1})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ValidationError, ragerrors.KindOf(err))
}

func TestValidateAnswerBounds_AllZeroIsValid(t *testing.T) {
	assert.NoError(t, validateAnswerBounds(answerRequest{}))
}
