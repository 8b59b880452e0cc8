// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// Seq2SeqEncoder is the contract for the external sequence encoder: given a
// [B, L, in] sequence and its [B, L] validity mask, produce [B, L, out]
// contextual features. The phrase encoder and the modeling encoder are both
// injected through this interface; their internal architecture is not this
// package's concern. Implementations must be deterministic and stateless
// per call.
type Seq2SeqEncoder interface {
	Forward(input, mask *Tensor) *Tensor
	InputDim() int
	OutputDim() int
	Parameters() []*Tensor
}

// ProjectionEncoder is a minimal Seq2SeqEncoder: a per-position linear
// projection followed by ReLU, with masked positions zeroed. It carries no
// cross-position context and exists so the pipeline can run end to end
// without a full convolutional/self-attention stack behind it.
type ProjectionEncoder struct {
	proj *Linear
}

// NewProjectionEncoder creates a linear+ReLU per-position encoder.
func NewProjectionEncoder(inputDim, outputDim int) *ProjectionEncoder {
	return &ProjectionEncoder{proj: NewLinear(inputDim, outputDim, true)}
}

// Forward projects every position and zeroes masked ones.
func (e *ProjectionEncoder) Forward(input, mask *Tensor) *Tensor {
	out := e.proj.Forward(input).ReLU()
	applySequenceMask(out, mask)
	return out
}

// InputDim returns the expected input feature width.
func (e *ProjectionEncoder) InputDim() int { return e.proj.InFeatures() }

// OutputDim returns the produced feature width.
func (e *ProjectionEncoder) OutputDim() int { return e.proj.OutFeatures() }

// Parameters returns the projection weights.
func (e *ProjectionEncoder) Parameters() []*Tensor { return e.proj.Parameters() }

// PassThroughEncoder returns its input unchanged apart from zeroing masked
// positions. Useful when the caller supplies already-encoded sequences, and
// as a deterministic double in tests.
type PassThroughEncoder struct {
	dim int
}

// NewPassThroughEncoder creates an identity encoder of the given width.
func NewPassThroughEncoder(dim int) *PassThroughEncoder {
	return &PassThroughEncoder{dim: dim}
}

// Forward copies the input with masked positions zeroed.
func (e *PassThroughEncoder) Forward(input, mask *Tensor) *Tensor {
	if input.Shape().At(-1) != e.dim {
		panic(fmt.Sprintf("pass-through encoder expects dim %d, got %d", e.dim, input.Shape().At(-1)))
	}
	out := input.Clone()
	applySequenceMask(out, mask)
	return out
}

// InputDim returns the encoder width.
func (e *PassThroughEncoder) InputDim() int { return e.dim }

// OutputDim returns the encoder width.
func (e *PassThroughEncoder) OutputDim() int { return e.dim }

// Parameters returns nil; the encoder is parameter-free.
func (e *PassThroughEncoder) Parameters() []*Tensor { return nil }

// applySequenceMask zeroes every feature at masked positions, in place.
// seq: [B, L, D], mask: [B, L].
func applySequenceMask(seq, mask *Tensor) {
	dim := seq.Shape().At(-1)
	rows := seq.Shape().Numel() / dim
	if mask.Shape().Numel() != rows {
		panic(fmt.Sprintf("mask shape %v incompatible with sequence shape %v", mask.Shape(), seq.Shape()))
	}
	sd, md := seq.DataPtr(), mask.DataPtr()
	for v := 0; v < rows; v++ {
		if md[v] > 0 {
			continue
		}
		off := v * dim
		for d := 0; d < dim; d++ {
			sd[off+d] = 0
		}
	}
}
