// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance. Struct validation is
// stateless, so one shared instance serves all configs.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Config describes one model instance: the widths of the encoder stack
// and the closed set of answer kinds the gate chooses between. The kind
// order is significant: gate column k scores Kinds[k], and decode ties
// break toward earlier kinds.
type Config struct {
	// EncodingDim is the output width of the phrase encoders applied to
	// the embedded question and passage.
	EncodingDim int `validate:"required,gt=0"`

	// ModelingDim is the width of the modeling encoder. The fused
	// passage representation (4*EncodingDim) is projected down to this
	// before the modeling passes.
	ModelingDim int `validate:"required,gt=0"`

	// NumberEmbedDim is the embedding width of detected passage numbers.
	// Only consulted when ArithmeticAnswer is configured.
	NumberEmbedDim int `validate:"gte=0"`

	// ModelingPasses is how many times the modeling encoder re-reads the
	// projected passage. Span scoring pairs snapshots 1..3, so span
	// kinds need at least three passes.
	ModelingPasses int `validate:"required,gte=1"`

	// Kinds is the ordered, non-empty set of answer kinds to support.
	Kinds []AnswerKind `validate:"required,min=1"`

	// HiddenDim is the hidden width of the feed-forward scorer heads.
	// Zero means ModelingDim.
	HiddenDim int `validate:"gte=0"`
}

// SpanOnlyConfig answers with passage spans only.
func SpanOnlyConfig(encodingDim, modelingDim int) Config {
	return Config{
		EncodingDim:    encodingDim,
		ModelingDim:    modelingDim,
		ModelingPasses: 3,
		Kinds:          []AnswerKind{PassageSpanAnswer},
	}
}

// QuestionSpanConfig answers with passage or question spans.
func QuestionSpanConfig(encodingDim, modelingDim int) Config {
	return Config{
		EncodingDim:    encodingDim,
		ModelingDim:    modelingDim,
		ModelingPasses: 3,
		Kinds:          []AnswerKind{PassageSpanAnswer, QuestionSpanAnswer},
	}
}

// ArithmeticConfig answers with passage spans, signed-sum arithmetic over
// detected numbers, or counts.
func ArithmeticConfig(encodingDim, modelingDim, numberEmbedDim int) Config {
	return Config{
		EncodingDim:    encodingDim,
		ModelingDim:    modelingDim,
		NumberEmbedDim: numberEmbedDim,
		ModelingPasses: 4,
		Kinds:          []AnswerKind{PassageSpanAnswer, ArithmeticAnswer, CountAnswer},
	}
}

// hiddenDim resolves the scorer-head hidden width.
func (c Config) hiddenDim() int {
	if c.HiddenDim > 0 {
		return c.HiddenDim
	}
	return c.ModelingDim
}

// hasKind reports whether k is configured.
func (c Config) hasKind(k AnswerKind) bool {
	for _, want := range c.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// kindIndex returns k's gate column, or -1 if not configured.
func (c Config) kindIndex(k AnswerKind) int {
	for i, want := range c.Kinds {
		if want == k {
			return i
		}
	}
	return -1
}

// Validate checks field ranges and the cross-field constraints the tags
// cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[AnswerKind]bool, len(c.Kinds))
	for _, k := range c.Kinds {
		if k >= numAnswerKinds {
			return fmt.Errorf("invalid config: unknown answer kind %d", k)
		}
		if seen[k] {
			return fmt.Errorf("invalid config: duplicate answer kind %v", k)
		}
		seen[k] = true
	}
	if (c.hasKind(PassageSpanAnswer) || c.hasKind(QuestionSpanAnswer)) && c.ModelingPasses < 3 {
		return fmt.Errorf("invalid config: span answers need at least 3 modeling passes, got %d", c.ModelingPasses)
	}
	if c.hasKind(ArithmeticAnswer) && c.NumberEmbedDim <= 0 {
		return fmt.Errorf("invalid config: arithmetic answers need NumberEmbedDim > 0")
	}
	return nil
}
