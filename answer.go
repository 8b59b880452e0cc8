// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// AnswerKind is the closed set of derivation strategies the model can use
// to produce an answer. Which kinds are active is fixed at construction
// through Config.Kinds; an AnswerKind outside the configured set reaching
// the decoder is a fatal configuration mismatch.
type AnswerKind uint8

const (
	// PassageSpanAnswer extracts a contiguous span from the passage.
	PassageSpanAnswer AnswerKind = iota
	// QuestionSpanAnswer extracts a contiguous span from the question.
	QuestionSpanAnswer
	// ArithmeticAnswer sums the passage's detected numbers under a
	// predicted per-number sign assignment.
	ArithmeticAnswer
	// CountAnswer predicts a small integer directly.
	CountAnswer

	numAnswerKinds
)

// String returns the kind's name.
func (k AnswerKind) String() string {
	switch k {
	case PassageSpanAnswer:
		return "passage_span"
	case QuestionSpanAnswer:
		return "question_span"
	case ArithmeticAnswer:
		return "arithmetic"
	case CountAnswer:
		return "count"
	default:
		return fmt.Sprintf("answer_kind(%d)", uint8(k))
	}
}

// Sign labels for the arithmetic head, in label-index order.
// Index 0 leaves a number out of the sum, 1 adds it, 2 subtracts it.
const (
	SignUnused = 0
	SignPlus   = 1
	SignMinus  = 2
	numSigns   = 3
)

// signValue maps a sign label index to its arithmetic value.
var signValue = [numSigns]float64{0, 1, -1}

// CountVocabularySize is the number of count classes (counts 0..9).
const CountVocabularySize = 10

// Annotation holds every annotated correct derivation for one example.
// Each set may be empty (that kind contributes nothing) and may contain
// padding entries from fixed-capacity batching: spans with Start == -1,
// counts of -1, and all-zero sign-combination rows. Padding entries are
// excluded from the likelihood, never scored.
type Annotation struct {
	PassageSpans  []Span
	QuestionSpans []Span
	// Combinations rows assign a sign label {SignUnused, SignPlus,
	// SignMinus} to every number slot. An all-zero row is padding: a real
	// combination uses at least one number.
	Combinations [][]int
	Counts       []int
}

// HasAny reports whether the annotation carries at least one derivation
// set with at least one non-padded entry for the given kind.
func (a *Annotation) HasAny(kind AnswerKind) bool {
	switch kind {
	case PassageSpanAnswer:
		return anyRealSpan(a.PassageSpans)
	case QuestionSpanAnswer:
		return anyRealSpan(a.QuestionSpans)
	case ArithmeticAnswer:
		for _, combo := range a.Combinations {
			if !isPaddingCombination(combo) {
				return true
			}
		}
		return false
	case CountAnswer:
		for _, c := range a.Counts {
			if c != -1 {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("unknown answer kind %s", kind))
	}
}

func anyRealSpan(spans []Span) bool {
	for _, s := range spans {
		if !s.IsPadding() {
			return true
		}
	}
	return false
}

// isPaddingCombination reports whether every sign label in the row is
// SignUnused, the padding convention for combination rows.
func isPaddingCombination(combo []int) bool {
	for _, sign := range combo {
		if sign != SignUnused {
			return false
		}
	}
	return true
}

// CharSpan is a half-open character range [Begin, End) into original text.
type CharSpan struct {
	Begin, End int
}

// ExampleMetadata resolves model predictions into literal answer strings.
// Supplied by the data pipeline, consumed only at decode time, never
// mutated.
type ExampleMetadata struct {
	QuestionID       string
	OriginalPassage  string
	OriginalQuestion string
	// PassageTokenOffsets[i] is the character range of passage token i.
	PassageTokenOffsets []CharSpan
	// QuestionTokenOffsets[i] is the character range of question token i.
	QuestionTokenOffsets []CharSpan
	// OriginalNumbers[i] is the numeric value of the i-th detected number.
	OriginalNumbers []float64
	// AnswerTexts are the gold answers, used only by metric accumulation.
	AnswerTexts []string
}
