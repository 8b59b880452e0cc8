// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"fmt"
	"strconv"
	"strings"
)

// Greedy answer decoding. Unlike training, which marginalizes over all
// derivations of the gold answer, prediction commits to the single best
// derivation of each kind, weights it by the gate probability, and keeps
// the best-scoring kind. Ties go to the earlier kind in the configured
// order.

// PredictedAnswer is one decoded answer for one example.
type PredictedAnswer struct {
	QuestionID string
	Kind       AnswerKind
	Text       string
	Span       Span    // token span, valid for span kinds
	Signs      []int   // per-number sign labels, valid for ArithmeticAnswer
	Count      int     // valid for CountAnswer
	Score      float32 // gate-weighted probability of the chosen derivation
}

// kindCandidate is one kind's best derivation before gate weighting.
type kindCandidate struct {
	answer PredictedAnswer
	prob   float32
}

// decodeSpan scores the best span under per-position log-probabilities
// and renders its text through the token-to-character offsets.
func decodeSpan(kind AnswerKind, startLogProbs, endLogProbs []float32, text string, offsets []CharSpan) kindCandidate {
	sp := BestSpan(startLogProbs, endLogProbs)
	prob := ExpF32(startLogProbs[sp.Start] + endLogProbs[sp.End])
	return kindCandidate{
		answer: PredictedAnswer{
			Kind: kind,
			Span: sp,
			Text: text[offsets[sp.Start].Begin:offsets[sp.End].End],
		},
		prob: prob,
	}
}

// decodeArithmetic takes each valid number's most likely sign and
// evaluates the signed sum over the original number values.
func decodeArithmetic(signProbs, numbersMask []float32, numbers []float64) kindCandidate {
	signs := make([]int, len(numbers))
	prob := float32(1)
	var value float64
	for n := range numbers {
		if numbersMask[n] == 0 {
			signs[n] = SignUnused
			continue
		}
		row := signProbs[n*numSigns : (n+1)*numSigns]
		best, p := argmax(row)
		signs[n] = best
		prob *= p
		value += signValue[best] * numbers[n]
	}
	return kindCandidate{
		answer: PredictedAnswer{
			Kind:  ArithmeticAnswer,
			Signs: signs,
			Text:  strconv.FormatFloat(value, 'f', -1, 64),
		},
		prob: prob,
	}
}

// decodeCount takes the most likely count value.
func decodeCount(countProbs []float32) kindCandidate {
	best, p := argmax(countProbs)
	return kindCandidate{
		answer: PredictedAnswer{
			Kind:  CountAnswer,
			Count: best,
			Text:  strconv.Itoa(best),
		},
		prob: p,
	}
}

// pickBest gate-weights each kind's candidate and returns the winner.
// Candidates are ordered by the configured kind order; strict > keeps the
// first on ties.
func pickBest(gateLogProbs []float32, candidates []kindCandidate) PredictedAnswer {
	if len(candidates) == 0 {
		panic("no answer kinds to decode")
	}
	bestIdx, bestScore := 0, ExpF32(gateLogProbs[0])*candidates[0].prob
	for k := 1; k < len(candidates); k++ {
		score := ExpF32(gateLogProbs[k]) * candidates[k].prob
		if score > bestScore {
			bestIdx, bestScore = k, score
		}
	}
	out := candidates[bestIdx].answer
	out.Score = bestScore
	return out
}

// spanSourceText returns the text and offsets a span of the given kind
// indexes into.
func spanSourceText(kind AnswerKind, meta ExampleMetadata) (string, []CharSpan) {
	switch kind {
	case PassageSpanAnswer:
		return meta.OriginalPassage, meta.PassageTokenOffsets
	case QuestionSpanAnswer:
		return meta.OriginalQuestion, meta.QuestionTokenOffsets
	}
	panic(fmt.Sprintf("kind %v is not a span kind", kind))
}

// String renders the prediction for logging and debugging.
func (a PredictedAnswer) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v %q (score %.4f", a.Kind, a.Text, a.Score)
	switch a.Kind {
	case PassageSpanAnswer, QuestionSpanAnswer:
		fmt.Fprintf(&b, ", span %v", a.Span)
	case CountAnswer:
		fmt.Fprintf(&b, ", count %d", a.Count)
	}
	b.WriteString(")")
	return b.String()
}
