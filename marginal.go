// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

// Marginal likelihood over answer derivations. A question's gold answer
// usually admits several derivations (multiple span occurrences, several
// sign assignments summing to the same value), so training maximizes the
// log of the SUM of derivation probabilities rather than any single one.
// Everything here works in log space; padded derivations contribute
// PaddedLogSentinel, which vanishes inside LogSumExp.

// spanLogMarginal returns log sum_i P(span_i) for the annotated spans,
// given per-position log-probabilities for starts and ends. Padding spans
// (Start == -1) are excluded via the sentinel.
func spanLogMarginal(startLogProbs, endLogProbs []float32, spans []Span) float32 {
	terms := make([]float32, len(spans))
	for i, sp := range spans {
		if sp.IsPadding() {
			terms[i] = PaddedLogSentinel
			continue
		}
		terms[i] = startLogProbs[sp.Start] + endLogProbs[sp.End]
	}
	return LogSumExp(terms)
}

// arithmeticLogMarginal returns log sum_i P(combination_i) where a
// combination assigns one sign label per detected number and its
// probability is the product of the chosen per-number sign probabilities.
// Padded number slots (mask 0) contribute probability 1; all-unused rows
// are padding and are excluded. With no valid numbers at all a real
// combination's product is empty, i.e. probability 1.
func arithmeticLogMarginal(signProbs, numbersMask []float32, combinations [][]int) float32 {
	terms := make([]float32, len(combinations))
	for i, combo := range combinations {
		if isPaddingCombination(combo) {
			terms[i] = PaddedLogSentinel
			continue
		}
		var logProb float32
		for n, label := range combo {
			if numbersMask[n] == 0 {
				continue
			}
			logProb += LogF32(signProbs[n*numSigns+label] + ProbEpsilon)
		}
		terms[i] = logProb
	}
	return LogSumExp(terms)
}

// countLogMarginal returns log sum_i P(count_i) over the annotated count
// values. Padding entries (-1) are excluded via the sentinel.
func countLogMarginal(countProbs []float32, counts []int) float32 {
	terms := make([]float32, len(counts))
	for i, c := range counts {
		if c < 0 {
			terms[i] = PaddedLogSentinel
			continue
		}
		terms[i] = LogF32(countProbs[c] + ProbEpsilon)
	}
	return LogSumExp(terms)
}

// combineKindLogLikelihoods folds the per-kind marginals with the gate:
//
//	log sum_k exp(gateLogProbs[k] + kindLL[k])
//
// summing only over kinds the annotation actually supports. present[k]
// reports whether kind index k has at least one non-padding derivation.
// Panics if no kind is present: such an example carries no supervision
// and must be filtered upstream.
func combineKindLogLikelihoods(gateLogProbs, kindLLs []float32, present []bool) float32 {
	terms := make([]float32, 0, len(kindLLs))
	for k := range kindLLs {
		if !present[k] {
			continue
		}
		terms = append(terms, gateLogProbs[k]+kindLLs[k])
	}
	if len(terms) == 0 {
		panic("example has no annotated answer of any configured kind")
	}
	return LogSumExp(terms)
}
