// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// ---------------------------------------------------------------------------
// Representation Fusion
// ---------------------------------------------------------------------------

// FusionOutput carries the fused passage representation plus the
// passage-to-question attention weights, which are surfaced on the model
// output for inspection.
type FusionOutput struct {
	// Fused is [B, P, 4*encodingDim].
	Fused *Tensor
	// PassageQuestionAttention is [B, P, Q]; each valid row sums to 1 over
	// valid question positions.
	PassageQuestionAttention *Tensor
}

// BiAttentionFusion lets every passage position see the question and, via
// attention-over-attention, itself:
//
//	S            = similarity(passage, question)            [B, P, Q]
//	A_pq         = masked_softmax_rows(S, question_mask)    [B, P, Q]
//	A_qp         = masked_softmax_rows(S^T, passage_mask)   [B, Q, P]
//	A_pp         = A_pq @ A_qp                              [B, P, P]
//	c_q          = A_pq @ question                          [B, P, D]
//	c_p          = A_pp @ passage                           [B, P, D]
//	fused        = [passage; c_q; passage*c_q; passage*c_p] [B, P, 4D]
//
// Masked positions contribute zero weight everywhere: rows of A_pq sum to 1
// over valid question positions (or 0 if none), and likewise for A_qp.
type BiAttentionFusion struct {
	attention MatrixAttention
}

// NewBiAttentionFusion wires the fusion step to a similarity function.
func NewBiAttentionFusion(attention MatrixAttention) *BiAttentionFusion {
	return &BiAttentionFusion{attention: attention}
}

// Parameters returns the similarity function's parameters, if any.
func (f *BiAttentionFusion) Parameters() []*Tensor {
	if p, ok := f.attention.(interface{ Parameters() []*Tensor }); ok {
		return p.Parameters()
	}
	return nil
}

// Forward fuses the encoded passage with the encoded question.
func (f *BiAttentionFusion) Forward(encodedPassage, encodedQuestion, passageMask, questionMask *Tensor) *FusionOutput {
	if encodedPassage.Shape().At(-1) != encodedQuestion.Shape().At(-1) {
		panic(fmt.Sprintf("fusion dim mismatch: passage %v vs question %v",
			encodedPassage.Shape(), encodedQuestion.Shape()))
	}

	// Shape: [B, P, Q]
	similarity := f.attention.Forward(encodedPassage, encodedQuestion)
	// Shape: [B, P, Q], rows normalized over valid question positions.
	passageQuestionAttn := MaskedSoftmax(similarity, questionMask)
	// Shape: [B, P, D] -- each passage position sees the question.
	passageQuestionVectors := WeightedSum(encodedQuestion, passageQuestionAttn)

	// Shape: [B, Q, P], rows normalized over valid passage positions.
	questionPassageAttn := MaskedSoftmax(similarity.Transpose(), passageMask)
	// Attention over attention: [B, P, Q] @ [B, Q, P] -> [B, P, P].
	passagePassageAttn := Matmul(passageQuestionAttn, questionPassageAttn)
	// Shape: [B, P, D] -- each passage position sees itself via the question.
	passagePassageVectors := WeightedSum(encodedPassage, passagePassageAttn)

	fused := ConcatLastDim(
		encodedPassage,
		passageQuestionVectors,
		encodedPassage.Mul(passageQuestionVectors),
		encodedPassage.Mul(passagePassageVectors),
	)
	return &FusionOutput{
		Fused:                    fused,
		PassageQuestionAttention: passageQuestionAttn,
	}
}

// ---------------------------------------------------------------------------
// Modeling Refinement
// ---------------------------------------------------------------------------

// ModelingRefinement projects the fused representation down to the modeling
// width and applies the modeling encoder several times, caching every
// snapshot. Shallow snapshots feed local decisions (span boundaries),
// deeper ones feed global decisions (pooled summaries, counts); the heads
// pick the snapshot indices they want.
type ModelingRefinement struct {
	proj    *Linear
	encoder Seq2SeqEncoder
	passes  int
}

// NewModelingRefinement builds the projection and binds the refinement
// encoder. The encoder must map its own output width back to its input
// width so that refinement can be applied repeatedly.
func NewModelingRefinement(fusedDim int, encoder Seq2SeqEncoder, passes int) *ModelingRefinement {
	if encoder.InputDim() != encoder.OutputDim() {
		panic(fmt.Sprintf("modeling encoder must preserve width for repeated passes: in %d, out %d",
			encoder.InputDim(), encoder.OutputDim()))
	}
	if passes < 1 {
		panic(fmt.Sprintf("modeling refinement requires at least one pass, got %d", passes))
	}
	return &ModelingRefinement{
		proj:    NewLinear(fusedDim, encoder.InputDim(), true),
		encoder: encoder,
		passes:  passes,
	}
}

// Forward returns passes+1 snapshots: index 0 is the projected fused
// representation, index i is the output of the i-th refinement pass.
// Every snapshot is [B, P, modelingDim].
func (r *ModelingRefinement) Forward(fused, passageMask *Tensor) []*Tensor {
	snapshots := make([]*Tensor, 0, r.passes+1)
	snapshots = append(snapshots, r.proj.Forward(fused))
	for i := 0; i < r.passes; i++ {
		snapshots = append(snapshots, r.encoder.Forward(snapshots[len(snapshots)-1], passageMask))
	}
	return snapshots
}

// Passes returns the number of refinement applications.
func (r *ModelingRefinement) Passes() int { return r.passes }

// OutputDim returns the modeling feature width.
func (r *ModelingRefinement) OutputDim() int { return r.encoder.OutputDim() }

// Parameters returns the projection and encoder parameters.
func (r *ModelingRefinement) Parameters() []*Tensor {
	return concatParams(r.proj.Parameters(), r.encoder.Parameters())
}
