// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"math"
	"testing"
)

// almostEqual reports |a-b| <= tol. Shared by the kernel tests.
func almostEqual(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func slicesAlmostEqual(a, b []float32, tol float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !almostEqual(a[i], b[i], tol) {
			return false
		}
	}
	return true
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 100, 100, 100}, NewShape(2, 3))
	sm := x.Softmax()
	for r := 0; r < 2; r++ {
		var sum float32
		for c := 0; c < 3; c++ {
			sum += sm.At(r, c)
		}
		if !almostEqual(sum, 1.0, 1e-4) {
			t.Errorf("row %d sums to %f, want 1", r, sum)
		}
	}
}

func TestSoftmaxStableWithLargeInputs(t *testing.T) {
	x := FromSlice([]float32{1000, 1001, 1002}, NewShape(1, 3))
	sm := x.Softmax()
	for c := 0; c < 3; c++ {
		v := sm.At(0, c)
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("softmax produced %f at column %d", v, c)
		}
	}
}

func TestLogSoftmaxMatchesLogOfSoftmax(t *testing.T) {
	x := FromSlice([]float32{0.5, -1.2, 2.0, 0.1}, NewShape(1, 4))
	logSM := x.LogSoftmax()
	sm := x.Softmax()
	for c := 0; c < 4; c++ {
		want := LogF32(sm.At(0, c))
		if !almostEqual(logSM.At(0, c), want, 1e-4) {
			t.Errorf("column %d: log-softmax %f, log(softmax) %f", c, logSM.At(0, c), want)
		}
	}
}

func TestMatmulPinned(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4, 5, 6}, NewShape(2, 3))
	b := FromSlice([]float32{7, 8, 9, 10, 11, 12}, NewShape(3, 2))
	got := Matmul(a, b)
	want := []float32{58, 64, 139, 154}
	if !slicesAlmostEqual(got.Data(), want, 1e-5) {
		t.Errorf("matmul = %v, want %v", got.Data(), want)
	}
}

func TestBatchedMatmul(t *testing.T) {
	// Two independent 2x2 @ 2x2 products.
	a := FromSlice([]float32{
		1, 0, 0, 1,
		2, 0, 0, 2,
	}, NewShape(2, 2, 2))
	b := FromSlice([]float32{
		3, 4, 5, 6,
		3, 4, 5, 6,
	}, NewShape(2, 2, 2))
	got := Matmul(a, b)
	want := []float32{3, 4, 5, 6, 6, 8, 10, 12}
	if !slicesAlmostEqual(got.Data(), want, 1e-5) {
		t.Errorf("batched matmul = %v, want %v", got.Data(), want)
	}
}

func TestConcatLastDimInterleaves(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4}, NewShape(2, 2))
	b := FromSlice([]float32{5, 6}, NewShape(2, 1))
	got := ConcatLastDim(a, b)
	if !got.Shape().Equal(NewShape(2, 3)) {
		t.Fatalf("concat shape = %v, want [2 3]", got.Shape())
	}
	want := []float32{1, 2, 5, 3, 4, 6}
	if !slicesAlmostEqual(got.Data(), want, 0) {
		t.Errorf("concat = %v, want %v", got.Data(), want)
	}
}

func TestArgmaxFirstIndexOnTies(t *testing.T) {
	idx, val := argmax([]float32{0.2, 0.7, 0.7, 0.1})
	if idx != 1 || val != 0.7 {
		t.Errorf("argmax = (%d, %f), want (1, 0.7)", idx, val)
	}
}

func TestReLU(t *testing.T) {
	x := FromSlice([]float32{-1, 0, 2.5}, NewShape(3))
	got := x.ReLU()
	want := []float32{0, 0, 2.5}
	if !slicesAlmostEqual(got.Data(), want, 0) {
		t.Errorf("relu = %v, want %v", got.Data(), want)
	}
}
