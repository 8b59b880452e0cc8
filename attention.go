// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// MatrixAttention computes a similarity score between every position pair
// of two encoded sequences. The fusion step is written against this
// interface so the similarity function stays pluggable.
type MatrixAttention interface {
	// Forward returns scores [B, X, Y] for x: [B, X, D] and y: [B, Y, D].
	Forward(x, y *Tensor) *Tensor
}

// LinearMatrixAttention scores position pairs with a learned linear
// function over the concatenation [x; y; x*y]:
//
//	score(x_i, y_j) = w_x . x_i + w_y . y_j + w_xy . (x_i * y_j) + b
//
// The elementwise-product term factors through a single batched matmul:
// (x * w_xy) @ y^T, while the two linear terms are rank-one row/column
// additions. This keeps the full [B, X, Y] score computation at one GEMM.
type LinearMatrixAttention struct {
	wX, wY, wXY *Tensor // [dim] each
	bias        *Tensor // scalar
	dim         int
}

// NewLinearMatrixAttention creates the w.[x; y; x*y] similarity with
// N(0, sqrt(2/dim)) weights and zero bias.
func NewLinearMatrixAttention(dim int) *LinearMatrixAttention {
	std := SqrtF32(2.0 / float32(dim))
	return &LinearMatrixAttention{
		wX:   RandnWithStd(NewShape(dim), F32, std),
		wY:   RandnWithStd(NewShape(dim), F32, std),
		wXY:  RandnWithStd(NewShape(dim), F32, std),
		bias: Zeros(NewShape(1), F32),
		dim:  dim,
	}
}

// Forward computes the [B, X, Y] similarity matrix.
func (a *LinearMatrixAttention) Forward(x, y *Tensor) *Tensor {
	a.check(x, y)
	batch, xLen := x.Shape().At(0), x.Shape().At(1)
	yLen := y.Shape().At(1)

	// Cross term: (x * w_xy) @ y^T -> [B, X, Y].
	xScaled := New(x.Shape(), F32)
	xd, sd, w := x.DataPtr(), xScaled.DataPtr(), a.wXY.DataPtr()
	for v := 0; v < batch*xLen; v++ {
		off := v * a.dim
		for d := 0; d < a.dim; d++ {
			sd[off+d] = xd[off+d] * w[d]
		}
	}
	scores := Matmul(xScaled, y.Transpose())

	// Row term w_x . x_i, column term w_y . y_j, and the bias.
	xProj := dotRows(x, a.wX)
	yProj := dotRows(y, a.wY)
	bias := a.bias.DataPtr()[0]
	out := scores.DataPtr()
	for b := 0; b < batch; b++ {
		for i := 0; i < xLen; i++ {
			row := out[(b*xLen+i)*yLen : (b*xLen+i+1)*yLen]
			xi := xProj[b*xLen+i]
			for j := 0; j < yLen; j++ {
				row[j] += xi + yProj[b*yLen+j] + bias
			}
		}
	}
	return scores
}

// Parameters returns the three weight vectors and the bias.
func (a *LinearMatrixAttention) Parameters() []*Tensor {
	return []*Tensor{a.wX, a.wY, a.wXY, a.bias}
}

func (a *LinearMatrixAttention) check(x, y *Tensor) {
	if x.Shape().NDim() != 3 || y.Shape().NDim() != 3 {
		panic(fmt.Sprintf("matrix attention requires [B, L, D] inputs, got %v and %v", x.Shape(), y.Shape()))
	}
	if x.Shape().At(0) != y.Shape().At(0) {
		panic(fmt.Sprintf("matrix attention batch mismatch: %d vs %d", x.Shape().At(0), y.Shape().At(0)))
	}
	if x.Shape().At(2) != a.dim || y.Shape().At(2) != a.dim {
		panic(fmt.Sprintf("matrix attention expects dim %d, got %d and %d", a.dim, x.Shape().At(2), y.Shape().At(2)))
	}
}

// BilinearMatrixAttention scores position pairs through a learned matrix:
//
//	score(x_i, y_j) = x_i^T W y_j
type BilinearMatrixAttention struct {
	weight *Tensor // [dim, dim]
	dim    int
}

// NewBilinearMatrixAttention creates the x^T W y similarity.
func NewBilinearMatrixAttention(dim int) *BilinearMatrixAttention {
	std := SqrtF32(2.0 / float32(dim))
	return &BilinearMatrixAttention{
		weight: RandnWithStd(NewShape(dim, dim), F32, std),
		dim:    dim,
	}
}

// Forward computes the [B, X, Y] similarity matrix as (x @ W) @ y^T.
func (a *BilinearMatrixAttention) Forward(x, y *Tensor) *Tensor {
	if x.Shape().NDim() != 3 || y.Shape().NDim() != 3 {
		panic(fmt.Sprintf("matrix attention requires [B, L, D] inputs, got %v and %v", x.Shape(), y.Shape()))
	}
	if x.Shape().At(2) != a.dim || y.Shape().At(2) != a.dim {
		panic(fmt.Sprintf("matrix attention expects dim %d, got %d and %d", a.dim, x.Shape().At(2), y.Shape().At(2)))
	}
	batch, xLen := x.Shape().At(0), x.Shape().At(1)
	flatX := x.Reshape(NewShape(batch*xLen, a.dim))
	projected := Matmul(flatX, a.weight).Reshape(NewShape(batch, xLen, a.dim))
	return Matmul(projected, y.Transpose())
}

// Parameters returns the bilinear weight matrix.
func (a *BilinearMatrixAttention) Parameters() []*Tensor { return []*Tensor{a.weight} }

// dotRows computes the dot product of every [dim] row of t with w,
// returning one scalar per row in flat row order.
func dotRows(t *Tensor, w *Tensor) []float32 {
	dim := t.Shape().At(-1)
	rows := t.Shape().Numel() / dim
	out := make([]float32, rows)
	td, wd := t.DataPtr(), w.DataPtr()
	for v := 0; v < rows; v++ {
		off := v * dim
		dot := float32(0)
		for d := 0; d < dim; d++ {
			dot += td[off+d] * wd[d]
		}
		out[v] = dot
	}
	return out
}
