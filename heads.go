// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// The scorer heads. Every head is a small feed-forward classifier over
// either per-position features (span boundaries, number signs) or pooled
// summary vectors (answer-type gate, counts). All probability-producing
// heads renormalize over valid positions only.

// ---------------------------------------------------------------------------
// Span head
// ---------------------------------------------------------------------------

// SpanHead scores span starts and ends with two independent feed-forward
// predictors producing one logit per position.
type SpanHead struct {
	start *FeedForward
	end   *FeedForward
}

// NewSpanHead creates start/end predictors over inDim features.
func NewSpanHead(inDim, hiddenDim int) *SpanHead {
	return &SpanHead{
		start: NewFeedForward(inDim, hiddenDim, 1),
		end:   NewFeedForward(inDim, hiddenDim, 1),
	}
}

// Forward scores the given per-position feature tensors, returning
// [B, L] start and end logits. startInput and endInput may differ: the
// passage span head pairs different modeling snapshots for each boundary.
func (h *SpanHead) Forward(startInput, endInput *Tensor) (startLogits, endLogits *Tensor) {
	return squeezeLast(h.start.Forward(startInput)), squeezeLast(h.end.Forward(endInput))
}

// Parameters returns both predictors' parameters.
func (h *SpanHead) Parameters() []*Tensor {
	return concatParams(h.start.Parameters(), h.end.Parameters())
}

// ---------------------------------------------------------------------------
// Attention pooling
// ---------------------------------------------------------------------------

// AttentionPool summarizes a variable-length sequence into one vector:
// a linear score per position, masked softmax, weighted sum. The pooled
// passage and question vectors feeding the global heads both come from
// instances of this.
type AttentionPool struct {
	scorer *Linear
}

// NewAttentionPool creates a pooling head over dim-wide features.
func NewAttentionPool(dim int) *AttentionPool {
	return &AttentionPool{scorer: NewLinear(dim, 1, true)}
}

// Forward pools seq [B, L, D] into [B, D] under the mask. With all
// positions masked the result is the zero vector (MaskedSoftmax yields an
// all-zero row).
func (p *AttentionPool) Forward(seq, mask *Tensor) *Tensor {
	scores := squeezeLast(p.scorer.Forward(seq))
	weights := MaskedSoftmax(scores, mask)
	return WeightedSum(seq, weights)
}

// Parameters returns the scoring projection's parameters.
func (p *AttentionPool) Parameters() []*Tensor { return p.scorer.Parameters() }

// ---------------------------------------------------------------------------
// Answer-type gate
// ---------------------------------------------------------------------------

// TypeGate classifies which answer kind an example calls for, from the
// concatenated pooled passage and question vectors. Output is a
// log-probability per configured kind (log-softmax over a closed set).
type TypeGate struct {
	ff *FeedForward
}

// NewTypeGate creates the gate over passageDim+questionDim inputs with
// numKinds output classes.
func NewTypeGate(passageDim, questionDim, hiddenDim, numKinds int) *TypeGate {
	return &TypeGate{ff: NewFeedForward(passageDim+questionDim, hiddenDim, numKinds)}
}

// Forward returns [B, numKinds] log-probabilities.
func (g *TypeGate) Forward(passageVector, questionVector *Tensor) *Tensor {
	return g.ff.Forward(ConcatLastDim(passageVector, questionVector)).LogSoftmax()
}

// Parameters returns the classifier's parameters.
func (g *TypeGate) Parameters() []*Tensor { return g.ff.Parameters() }

// ---------------------------------------------------------------------------
// Number-sign head
// ---------------------------------------------------------------------------

// SignHead classifies each detected number into {unused, plus, minus}.
// Each number's embedding is projected to the modeling width and paired
// with the pooled passage vector so the decision sees the whole passage.
type SignHead struct {
	proj *Linear
	ff   *FeedForward
}

// NewSignHead creates the per-number sign classifier.
func NewSignHead(numberEmbedDim, modelingDim int) *SignHead {
	return &SignHead{
		proj: NewLinear(numberEmbedDim, modelingDim, true),
		ff:   NewFeedForward(modelingDim*2, modelingDim, numSigns),
	}
}

// Forward returns [B, N, numSigns] sign probabilities. Rows for padded
// number slots are zeroed by the numbers mask; the likelihood computation
// restores them to the identity (probability 1) where needed.
func (h *SignHead) Forward(embeddedNumbers, numbersMask, passageVector *Tensor) *Tensor {
	projected := h.proj.Forward(embeddedNumbers)
	numNumbers := projected.Shape().At(1)
	paired := ConcatLastDim(projected, tileVector(passageVector, numNumbers))
	probs := h.ff.Forward(paired).Softmax()

	// Zero padded slots: probs[b, n, :] *= numbersMask[b, n].
	pd, md := probs.DataPtr(), numbersMask.DataPtr()
	for v := 0; v < probs.Shape().Numel()/numSigns; v++ {
		if md[v] > 0 {
			continue
		}
		for s := 0; s < numSigns; s++ {
			pd[v*numSigns+s] = 0
		}
	}
	return probs
}

// Parameters returns the projection and classifier parameters.
func (h *SignHead) Parameters() []*Tensor {
	return concatParams(h.proj.Parameters(), h.ff.Parameters())
}

// ---------------------------------------------------------------------------
// Count head
// ---------------------------------------------------------------------------

// CountHead classifies the pooled passage vector into the small count
// vocabulary (0..9).
type CountHead struct {
	ff *FeedForward
}

// NewCountHead creates the count classifier.
func NewCountHead(modelingDim int) *CountHead {
	return &CountHead{ff: NewFeedForward(modelingDim, modelingDim, CountVocabularySize)}
}

// Forward returns [B, CountVocabularySize] count probabilities.
func (h *CountHead) Forward(passageVector *Tensor) *Tensor {
	return h.ff.Forward(passageVector).Softmax()
}

// Parameters returns the classifier's parameters.
func (h *CountHead) Parameters() []*Tensor { return h.ff.Parameters() }

// ---------------------------------------------------------------------------
// Shared shape helpers
// ---------------------------------------------------------------------------

// squeezeLast drops a trailing dimension of size 1: [B, L, 1] -> [B, L].
func squeezeLast(t *Tensor) *Tensor {
	dims := t.Shape().Dims()
	if dims[len(dims)-1] != 1 {
		panic(fmt.Sprintf("cannot squeeze last dim of %v", t.Shape()))
	}
	return t.Reshape(NewShape(dims[:len(dims)-1]...))
}

// tileVector repeats vec [B, D] along a new middle axis: -> [B, length, D].
// Used to pair a pooled summary with every position of a sequence.
func tileVector(vec *Tensor, length int) *Tensor {
	if vec.Shape().NDim() != 2 {
		panic(fmt.Sprintf("tile requires [B, D] input, got %v", vec.Shape()))
	}
	batch, dim := vec.Shape().At(0), vec.Shape().At(1)
	out := New(NewShape(batch, length, dim), vec.DType())
	src, dst := vec.DataPtr(), out.DataPtr()
	for b := 0; b < batch; b++ {
		row := src[b*dim : (b+1)*dim]
		for l := 0; l < length; l++ {
			copy(dst[(b*length+l)*dim:(b*length+l+1)*dim], row)
		}
	}
	return out
}
