// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// Masking and log-domain kernels. Every probability in this model flows
// through these: padded positions must never receive mass, and every log()
// on a probability must be guarded against zero. The three sentinels below
// are the only numeric guards in the package; keeping them in one place
// stops model variants from drifting apart.

const (
	// MaskSentinel replaces logits at masked positions before any
	// argmax-style search (best-span), so padding can never win.
	MaskSentinel = float32(-1e7)

	// PaddedLogSentinel is assigned to padded annotation slots before a
	// log-sum-exp, making their contribution exp(-1e10) ~ 0 without
	// producing NaN.
	PaddedLogSentinel = float32(-1e10)

	// ProbEpsilon guards direct log() calls on probabilities that may be
	// exactly zero.
	ProbEpsilon = float32(1e-10)
)

// maskRowsPer validates mask geometry against t and returns how many
// last-dim rows of t each mask row covers. For scores [B, P, Q] with mask
// [B, Q], each of the B mask rows covers P score rows.
func maskRowsPer(t, mask *Tensor) (lastDim, rowsPer int) {
	lastDim = t.Shape().At(-1)
	if mask.Shape().At(-1) != lastDim {
		panic(fmt.Sprintf("mask last dim %d != tensor last dim %d", mask.Shape().At(-1), lastDim))
	}
	tRows := t.Shape().Numel() / lastDim
	mRows := mask.Shape().Numel() / lastDim
	if mRows == 0 || tRows%mRows != 0 {
		panic(fmt.Sprintf("mask shape %v incompatible with tensor shape %v", mask.Shape(), t.Shape()))
	}
	return lastDim, tRows / mRows
}

// MaskedSoftmax computes a row-wise softmax restricted to valid positions.
// Masked positions receive exactly zero probability; valid positions are
// renormalized so each row sums to 1. A fully-masked row yields all zeros
// rather than NaN -- callers that rely on a meaningful distribution must
// not pass such rows, but they will never see NaN propagate from here.
//
// mask is a float32 0/1 tensor whose last dim matches t's; leading dims of
// t broadcast over mask rows (e.g. similarity [B, P, Q] with mask [B, Q]).
func MaskedSoftmax(t, mask *Tensor) *Tensor {
	lastDim, rowsPer := maskRowsPer(t, mask)
	numVectors := t.Shape().Numel() / lastDim

	result := New(t.Shape(), t.DType())
	src, dst, mData := t.DataPtr(), result.DataPtr(), mask.DataPtr()
	for v := 0; v < numVectors; v++ {
		off := v * lastDim
		mOff := (v / rowsPer) * lastDim
		sRow := src[off : off+lastDim]
		dRow := dst[off : off+lastDim]
		mRow := mData[mOff : mOff+lastDim]

		// Max over valid positions only; skip the exp entirely when the
		// whole row is masked so the output stays all-zero.
		maxVal := NegInf
		for i := 0; i < lastDim; i++ {
			if mRow[i] > 0 && sRow[i] > maxVal {
				maxVal = sRow[i]
			}
		}
		if maxVal == NegInf {
			continue
		}
		sum := float32(0)
		for i := 0; i < lastDim; i++ {
			if mRow[i] > 0 {
				e := ExpF32(sRow[i] - maxVal)
				dRow[i] = e
				sum += e
			}
		}
		invSum := 1.0 / sum
		for i := 0; i < lastDim; i++ {
			dRow[i] *= invSum
		}
	}
	return result
}

// MaskedLogSoftmax computes row-wise log-softmax over valid positions only.
//
//	log p_i = x_i - max_valid(x) - log(sum_{j valid} exp(x_j - max_valid(x)))
//
// Masked positions are set to MaskSentinel so that gathering a log-prob at
// a padded index yields an effectively impossible derivation instead of a
// spuriously competitive one. Fully-masked rows are entirely MaskSentinel.
func MaskedLogSoftmax(t, mask *Tensor) *Tensor {
	lastDim, rowsPer := maskRowsPer(t, mask)
	numVectors := t.Shape().Numel() / lastDim

	result := New(t.Shape(), t.DType())
	src, dst, mData := t.DataPtr(), result.DataPtr(), mask.DataPtr()
	for v := 0; v < numVectors; v++ {
		off := v * lastDim
		mOff := (v / rowsPer) * lastDim
		sRow := src[off : off+lastDim]
		dRow := dst[off : off+lastDim]
		mRow := mData[mOff : mOff+lastDim]

		maxVal := NegInf
		for i := 0; i < lastDim; i++ {
			if mRow[i] > 0 && sRow[i] > maxVal {
				maxVal = sRow[i]
			}
		}
		if maxVal == NegInf {
			for i := 0; i < lastDim; i++ {
				dRow[i] = MaskSentinel
			}
			continue
		}
		sumExp := float32(0)
		for i := 0; i < lastDim; i++ {
			if mRow[i] > 0 {
				sumExp += ExpF32(sRow[i] - maxVal)
			}
		}
		logSum := LogF32(sumExp)
		for i := 0; i < lastDim; i++ {
			if mRow[i] > 0 {
				dRow[i] = sRow[i] - maxVal - logSum
			} else {
				dRow[i] = MaskSentinel
			}
		}
	}
	return result
}

// ReplaceMaskedValues returns a copy of t with masked positions overwritten
// by value. Used to pre-fill padding with MaskSentinel before best-span
// search so invalid positions cannot win the DP.
func ReplaceMaskedValues(t, mask *Tensor, value float32) *Tensor {
	lastDim, rowsPer := maskRowsPer(t, mask)
	numVectors := t.Shape().Numel() / lastDim

	result := New(t.Shape(), t.DType())
	src, dst, mData := t.DataPtr(), result.DataPtr(), mask.DataPtr()
	for v := 0; v < numVectors; v++ {
		off := v * lastDim
		mOff := (v / rowsPer) * lastDim
		for i := 0; i < lastDim; i++ {
			if mData[mOff+i] > 0 {
				dst[off+i] = src[off+i]
			} else {
				dst[off+i] = value
			}
		}
	}
	return result
}

// WeightedSum computes attention-weighted sums of value vectors.
//
//	out[..., d] = sum_l weights[..., l] * values[b, l, d]
//
// values: [B, L, D]. weights: [B, L] -> [B, D], or [B, M, L] -> [B, M, D].
// Weights produced by MaskedSoftmax are zero at masked positions, so padding
// never influences the sum.
func WeightedSum(values, weights *Tensor) *Tensor {
	if values.Shape().NDim() != 3 {
		panic(fmt.Sprintf("weighted sum requires [B, L, D] values, got %v", values.Shape()))
	}
	batch := values.Shape().At(0)
	switch weights.Shape().NDim() {
	case 2:
		if weights.Shape().At(0) != batch || weights.Shape().At(1) != values.Shape().At(1) {
			panic(fmt.Sprintf("weights shape %v incompatible with values %v", weights.Shape(), values.Shape()))
		}
		w3 := weights.Reshape(NewShape(batch, 1, weights.Shape().At(1)))
		out := Matmul(w3, values)
		return out.Reshape(NewShape(batch, values.Shape().At(2)))
	case 3:
		if weights.Shape().At(0) != batch || weights.Shape().At(2) != values.Shape().At(1) {
			panic(fmt.Sprintf("weights shape %v incompatible with values %v", weights.Shape(), values.Shape()))
		}
		return Matmul(weights, values)
	default:
		panic(fmt.Sprintf("weighted sum requires 2D or 3D weights, got %v", weights.Shape()))
	}
}

// LogSumExp returns log(sum_i exp(x_i)), stabilized by subtracting the
// running maximum before exponentiating. This is the single marginalization
// primitive: summing likelihoods of alternative derivations in log space.
func LogSumExp(xs []float32) float32 {
	if len(xs) == 0 {
		panic("logsumexp of empty slice")
	}
	_, maxVal := argmax(xs)
	sum := float32(0)
	for _, x := range xs {
		sum += ExpF32(x - maxVal)
	}
	return maxVal + LogF32(sum)
}
