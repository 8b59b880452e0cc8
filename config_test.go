// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsValidate(t *testing.T) {
	require.NoError(t, SpanOnlyConfig(16, 32).Validate())
	require.NoError(t, QuestionSpanConfig(16, 32).Validate())
	require.NoError(t, ArithmeticConfig(16, 32, 8).Validate())
}

func TestConfigRejectsMissingKinds(t *testing.T) {
	cfg := SpanOnlyConfig(16, 32)
	cfg.Kinds = nil
	assert.Error(t, cfg.Validate())
}

func TestConfigRejectsDuplicateKinds(t *testing.T) {
	cfg := SpanOnlyConfig(16, 32)
	cfg.Kinds = []AnswerKind{PassageSpanAnswer, PassageSpanAnswer}
	assert.ErrorContains(t, cfg.Validate(), "duplicate")
}

func TestConfigRejectsUnknownKind(t *testing.T) {
	cfg := SpanOnlyConfig(16, 32)
	cfg.Kinds = []AnswerKind{AnswerKind(42)}
	assert.ErrorContains(t, cfg.Validate(), "unknown answer kind")
}

func TestConfigRejectsTooFewPassesForSpans(t *testing.T) {
	cfg := SpanOnlyConfig(16, 32)
	cfg.ModelingPasses = 2
	assert.ErrorContains(t, cfg.Validate(), "modeling passes")
}

func TestConfigRejectsArithmeticWithoutNumberDim(t *testing.T) {
	cfg := ArithmeticConfig(16, 32, 8)
	cfg.NumberEmbedDim = 0
	assert.ErrorContains(t, cfg.Validate(), "NumberEmbedDim")
}

func TestConfigRejectsZeroDims(t *testing.T) {
	cfg := SpanOnlyConfig(0, 32)
	assert.Error(t, cfg.Validate())
}

func TestKindIndexFollowsConfiguredOrder(t *testing.T) {
	cfg := ArithmeticConfig(16, 32, 8)
	assert.Equal(t, 0, cfg.kindIndex(PassageSpanAnswer))
	assert.Equal(t, 1, cfg.kindIndex(ArithmeticAnswer))
	assert.Equal(t, 2, cfg.kindIndex(CountAnswer))
	assert.Equal(t, -1, cfg.kindIndex(QuestionSpanAnswer))
}

func TestHiddenDimDefaultsToModelingDim(t *testing.T) {
	cfg := SpanOnlyConfig(16, 32)
	assert.Equal(t, 32, cfg.hiddenDim())
	cfg.HiddenDim = 64
	assert.Equal(t, 64, cfg.hiddenDim())
}
