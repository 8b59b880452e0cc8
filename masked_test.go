// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"math"
	"testing"
)

func TestMaskedSoftmaxZeroesMaskedPositions(t *testing.T) {
	scores := FromSlice([]float32{1, 2, 3, 4}, NewShape(1, 4))
	mask := FromSlice([]float32{1, 1, 0, 1}, NewShape(1, 4))
	got := MaskedSoftmax(scores, mask)
	if got.At(0, 2) != 0 {
		t.Errorf("masked position weight = %f, want 0", got.At(0, 2))
	}
	var sum float32
	for c := 0; c < 4; c++ {
		sum += got.At(0, c)
	}
	if !almostEqual(sum, 1.0, 1e-4) {
		t.Errorf("valid weights sum to %f, want 1", sum)
	}
}

func TestMaskedSoftmaxAllMaskedRowIsZeroNotNaN(t *testing.T) {
	scores := FromSlice([]float32{5, -3, 0.5, 1, 2, 3}, NewShape(2, 3))
	mask := FromSlice([]float32{0, 0, 0, 1, 1, 1}, NewShape(2, 3))
	got := MaskedSoftmax(scores, mask)
	for c := 0; c < 3; c++ {
		v := got.At(0, c)
		if math.IsNaN(float64(v)) {
			t.Fatalf("all-masked row produced NaN at column %d", c)
		}
		if v != 0 {
			t.Errorf("all-masked row weight = %f at column %d, want 0", v, c)
		}
	}
}

func TestMaskedSoftmaxBroadcastsOverMiddleAxis(t *testing.T) {
	// Scores [1, 2, 3] with mask [1, 3]: both middle rows share the mask.
	scores := FromSlice([]float32{1, 2, 3, 4, 5, 6}, NewShape(1, 2, 3))
	mask := FromSlice([]float32{1, 0, 1}, NewShape(1, 3))
	got := MaskedSoftmax(scores, mask)
	for r := 0; r < 2; r++ {
		if got.At(0, r, 1) != 0 {
			t.Errorf("broadcast row %d kept masked weight %f", r, got.At(0, r, 1))
		}
	}
}

func TestMaskedLogSoftmaxSentinelAtMaskedPositions(t *testing.T) {
	scores := FromSlice([]float32{1, 2, 3}, NewShape(1, 3))
	mask := FromSlice([]float32{1, 0, 1}, NewShape(1, 3))
	got := MaskedLogSoftmax(scores, mask)
	if got.At(0, 1) != MaskSentinel {
		t.Errorf("masked log-prob = %f, want sentinel %f", got.At(0, 1), MaskSentinel)
	}
	// Valid positions renormalize over themselves.
	sum := ExpF32(got.At(0, 0)) + ExpF32(got.At(0, 2))
	if !almostEqual(sum, 1.0, 1e-4) {
		t.Errorf("valid probabilities sum to %f, want 1", sum)
	}
}

func TestReplaceMaskedValues(t *testing.T) {
	scores := FromSlice([]float32{1, 2, 3}, NewShape(1, 3))
	mask := FromSlice([]float32{1, 0, 1}, NewShape(1, 3))
	got := ReplaceMaskedValues(scores, mask, MaskSentinel)
	want := []float32{1, MaskSentinel, 3}
	if !slicesAlmostEqual(got.Data(), want, 0) {
		t.Errorf("replace = %v, want %v", got.Data(), want)
	}
}

func TestWeightedSum(t *testing.T) {
	values := FromSlice([]float32{
		1, 0,
		0, 1,
		2, 2,
	}, NewShape(1, 3, 2))
	weights := FromSlice([]float32{0.5, 0.5, 0}, NewShape(1, 3))
	got := WeightedSum(values, weights)
	want := []float32{0.5, 0.5}
	if !got.Shape().Equal(NewShape(1, 2)) {
		t.Fatalf("weighted sum shape = %v, want [1 2]", got.Shape())
	}
	if !slicesAlmostEqual(got.Data(), want, 1e-5) {
		t.Errorf("weighted sum = %v, want %v", got.Data(), want)
	}
}

func TestLogSumExp(t *testing.T) {
	got := LogSumExp([]float32{LogF32(0.25), LogF32(0.25)})
	if !almostEqual(got, LogF32(0.5), 1e-4) {
		t.Errorf("logsumexp = %f, want %f", got, LogF32(0.5))
	}
}

func TestLogSumExpIgnoresPaddedSentinel(t *testing.T) {
	real := LogF32(0.3)
	got := LogSumExp([]float32{real, PaddedLogSentinel})
	if !almostEqual(got, real, 1e-4) {
		t.Errorf("logsumexp with padded term = %f, want %f", got, real)
	}
}
