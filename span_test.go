// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "testing"

func TestBestSpanPinned(t *testing.T) {
	start := []float32{0.1, 0.5, 0.2, 0.9, 0.1}
	end := []float32{0.05, 0.2, 0.6, 0.1, 0.9}
	got := BestSpan(start, end)
	if got != (Span{Start: 3, End: 4}) {
		t.Fatalf("best span = %v, want (3, 4)", got)
	}
	score := start[got.Start] + end[got.End]
	if !almostEqual(score, 1.8, 1e-5) {
		t.Errorf("best span score = %f, want 1.8", score)
	}
}

func TestBestSpanNeverInverted(t *testing.T) {
	// End logits peak before the start peak; the span must still satisfy
	// start <= end.
	start := []float32{0.0, 0.1, 0.2, 5.0}
	end := []float32{4.0, 0.1, 0.1, 0.1}
	got := BestSpan(start, end)
	if got.Start > got.End {
		t.Fatalf("inverted span %v", got)
	}
}

func TestBestSpanSingleToken(t *testing.T) {
	got := BestSpan([]float32{1.5}, []float32{-0.5})
	if got != (Span{Start: 0, End: 0}) {
		t.Errorf("best span = %v, want (0, 0)", got)
	}
}

func TestBestSpanFirstOccurrenceOnTies(t *testing.T) {
	start := []float32{1, 1, 1}
	end := []float32{1, 1, 1}
	got := BestSpan(start, end)
	if got != (Span{Start: 0, End: 0}) {
		t.Errorf("tied best span = %v, want (0, 0)", got)
	}
}

func TestBestSpansBatchRespectsMask(t *testing.T) {
	// The highest logits sit in padded positions and must lose.
	start := FromSlice([]float32{
		0.1, 9.0, 0.5,
		0.5, 0.1, 9.0,
	}, NewShape(2, 3))
	end := FromSlice([]float32{
		0.2, 9.0, 0.1,
		0.6, 0.2, 9.0,
	}, NewShape(2, 3))
	mask := FromSlice([]float32{
		1, 0, 1,
		1, 1, 0,
	}, NewShape(2, 3))
	got := bestSpansBatch(start, end, mask)
	if got[0].Start == 1 || got[0].End == 1 {
		t.Errorf("example 0 picked padded position: %v", got[0])
	}
	if got[1].Start == 2 || got[1].End == 2 {
		t.Errorf("example 1 picked padded position: %v", got[1])
	}
}

func TestBestSpanPanicsOnEmptyInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty logits")
		}
	}()
	BestSpan(nil, nil)
}

func TestSpanPadding(t *testing.T) {
	if !(Span{Start: -1, End: -1}).IsPadding() {
		t.Error("(-1, -1) should be padding")
	}
	if (Span{Start: 0, End: 2}).IsPadding() {
		t.Error("(0, 2) should not be padding")
	}
}
