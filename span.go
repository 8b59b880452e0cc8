// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// Span is a contiguous token range, inclusive on both ends.
// A Start of -1 marks a padded annotation slot.
type Span struct {
	Start, End int
}

// IsPadding reports whether the span is a padding sentinel.
func (s Span) IsPadding() bool { return s.Start == -1 }

// String formats the span as "(start, end)".
func (s Span) String() string { return fmt.Sprintf("(%d, %d)", s.Start, s.End) }

// BestSpan finds the (start, end) pair maximizing start_logits[start] +
// end_logits[end] subject to start <= end, in one left-to-right scan:
//
//	best_start = running max of start_logits over positions <= j
//	score(j)   = best_start + end_logits[j]
//
// Because the running maximum is folded in before position j is scored,
// every candidate pairs an end with a start at or before it, so the
// constraint holds by construction. Both maxima keep the first index that
// achieves their value, so ties resolve to the earliest start, then the
// earliest end.
//
// Invalid positions must be pre-set to MaskSentinel so they cannot win.
// A fully-masked input is a caller precondition violation: the result is
// well-formed but meaningless.
func BestSpan(startLogits, endLogits []float32) Span {
	if len(startLogits) != len(endLogits) {
		panic(fmt.Sprintf("start/end length mismatch: %d vs %d", len(startLogits), len(endLogits)))
	}
	if len(startLogits) == 0 {
		panic("best-span search over empty sequence")
	}

	bestStart := NegInf
	bestStartIdx := 0
	best := NegInf
	span := Span{0, 0}
	for j := 0; j < len(endLogits); j++ {
		if startLogits[j] > bestStart {
			bestStart = startLogits[j]
			bestStartIdx = j
		}
		score := bestStart + endLogits[j]
		if score > best {
			best = score
			span = Span{bestStartIdx, j}
		}
	}
	return span
}

// bestSpansBatch runs BestSpan per example over [B, L] logits, masking
// invalid positions with MaskSentinel first.
func bestSpansBatch(startLogits, endLogits, mask *Tensor) []Span {
	masked := ReplaceMaskedValues(startLogits, mask, MaskSentinel)
	maskedEnd := ReplaceMaskedValues(endLogits, mask, MaskSentinel)
	batch, length := masked.Shape().At(0), masked.Shape().At(1)
	sd, ed := masked.DataPtr(), maskedEnd.DataPtr()
	spans := make([]Span, batch)
	for b := 0; b < batch; b++ {
		spans[b] = BestSpan(sd[b*length:(b+1)*length], ed[b*length:(b+1)*length])
	}
	return spans
}
