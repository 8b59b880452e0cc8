// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"strings"
	"unicode"
)

// EmF1Accumulator accumulates exact-match and token-F1 over predictions.
// Callers own their accumulator; nothing here is global, so separate
// evaluations (train vs validation) never bleed into each other. The
// zero value is ready to use.
type EmF1Accumulator struct {
	emSum float64
	f1Sum float64
	count int
}

// Observe scores one prediction against its reference answer texts and
// folds the result in. Both metrics take the max over references, so an
// example with several acceptable answers is scored against its best.
// Examples with no references are ignored.
func (a *EmF1Accumulator) Observe(prediction string, references []string) {
	if len(references) == 0 {
		return
	}
	predNorm := normalizeAnswer(prediction)
	var bestEM, bestF1 float64
	for _, ref := range references {
		refNorm := normalizeAnswer(ref)
		if predNorm == refNorm {
			bestEM = 1
		}
		if f1 := tokenF1(predNorm, refNorm); f1 > bestF1 {
			bestF1 = f1
		}
	}
	a.emSum += bestEM
	a.f1Sum += bestF1
	a.count++
}

// Metrics returns the running averages. With nothing observed both are 0.
func (a *EmF1Accumulator) Metrics() (em, f1 float64) {
	if a.count == 0 {
		return 0, 0
	}
	return a.emSum / float64(a.count), a.f1Sum / float64(a.count)
}

// Count returns how many predictions have been observed.
func (a *EmF1Accumulator) Count() int { return a.count }

// Reset clears the accumulator.
func (a *EmF1Accumulator) Reset() { *a = EmF1Accumulator{} }

// normalizeAnswer lowercases, strips punctuation and the articles
// a/an/the, and collapses whitespace.
func normalizeAnswer(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, f := range fields {
		if f == "a" || f == "an" || f == "the" {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// tokenF1 computes bag-of-tokens F1 between two normalized answers.
func tokenF1(pred, ref string) float64 {
	predTokens := strings.Fields(pred)
	refTokens := strings.Fields(ref)
	if len(predTokens) == 0 || len(refTokens) == 0 {
		if len(predTokens) == 0 && len(refTokens) == 0 {
			return 1
		}
		return 0
	}
	refCounts := make(map[string]int, len(refTokens))
	for _, t := range refTokens {
		refCounts[t]++
	}
	common := 0
	for _, t := range predTokens {
		if refCounts[t] > 0 {
			refCounts[t]--
			common++
		}
	}
	if common == 0 {
		return 0
	}
	precision := float64(common) / float64(len(predTokens))
	recall := float64(common) / float64(len(refTokens))
	return 2 * precision * recall / (precision + recall)
}
