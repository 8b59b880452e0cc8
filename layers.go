// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// ---------------------------------------------------------------------------
// Linear
// ---------------------------------------------------------------------------

// Linear computes y = x @ W^T + b (optional bias).
//
// Weight shape: [out_features, in_features] (transposed layout so that
// MatmulTransposedB can be used, avoiding a separate transpose allocation).
type Linear struct {
	weight  *Tensor
	bias    *Tensor
	inFeat  int
	outFeat int
	useBias bool
}

// NewLinear creates a linear layer with Kaiming initialization: N(0, sqrt(2/in)).
func NewLinear(inFeatures, outFeatures int, useBias bool) *Linear {
	std := SqrtF32(2.0 / float32(inFeatures))
	l := &Linear{
		weight:  RandnWithStd(NewShape(outFeatures, inFeatures), F32, std),
		inFeat:  inFeatures,
		outFeat: outFeatures,
		useBias: useBias,
	}
	if useBias {
		l.bias = Zeros(NewShape(outFeatures), F32)
	}
	return l
}

// Forward computes y = x @ W^T (+ bias). Input may be any shape where the
// last dim is in_features; leading dims are treated as a flat batch.
//
// The leading dims are peeled off, matmul runs on [batch, in_features],
// then the output is reshaped back to [...leading, out_features].
func (l *Linear) Forward(input *Tensor) *Tensor {
	batchDims, batchSize, last := splitLast(input.Shape().DimsRef())
	if last != l.inFeat {
		panic(fmt.Sprintf("linear expects last dim %d, got %d", l.inFeat, last))
	}
	flatInput := input.Reshape(NewShape(batchSize, l.inFeat))
	// Uses the trans flag on weight to avoid materializing W^T.
	output := MatmulTransposedB(flatInput, l.weight)

	if l.useBias {
		out, b := output.DataPtr(), l.bias.DataPtr()
		for i := 0; i < batchSize; i++ {
			row := out[i*l.outFeat : (i+1)*l.outFeat]
			for j := range row {
				row[j] += b[j]
			}
		}
	}

	return output.Reshape(withLastDim(batchDims, l.outFeat))
}

// Parameters returns the weight (and bias, if present).
func (l *Linear) Parameters() []*Tensor {
	if l.useBias {
		return []*Tensor{l.weight, l.bias}
	}
	return []*Tensor{l.weight}
}

// InFeatures returns the input dimension.
func (l *Linear) InFeatures() int { return l.inFeat }

// OutFeatures returns the output dimension.
func (l *Linear) OutFeatures() int { return l.outFeat }

// ---------------------------------------------------------------------------
// FeedForward
// ---------------------------------------------------------------------------

// FeedForward is the two-layer predictor head used by every scorer in this
// model: Linear -> ReLU -> Linear, both with bias.
//
//	y = W2 @ relu(W1 @ x + b1) + b2
//
// The span predictors, answer-type gate, sign head, and count head are all
// instances with different (in, hidden, out) dimensions.
type FeedForward struct {
	hidden *Linear
	out    *Linear
}

// NewFeedForward creates a relu->linear feed-forward head.
func NewFeedForward(inFeatures, hiddenFeatures, outFeatures int) *FeedForward {
	return &FeedForward{
		hidden: NewLinear(inFeatures, hiddenFeatures, true),
		out:    NewLinear(hiddenFeatures, outFeatures, true),
	}
}

// Forward applies both projections with the ReLU in between.
func (f *FeedForward) Forward(input *Tensor) *Tensor {
	return f.out.Forward(f.hidden.Forward(input).ReLU())
}

// Parameters returns all weights and biases from both projections.
func (f *FeedForward) Parameters() []*Tensor {
	return concatParams(f.hidden.Parameters(), f.out.Parameters())
}

// InFeatures returns the input dimension.
func (f *FeedForward) InFeatures() int { return f.hidden.InFeatures() }

// OutFeatures returns the output dimension.
func (f *FeedForward) OutFeatures() int { return f.out.OutFeatures() }
