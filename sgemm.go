// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

// BLAS bridge. Matrix multiplication routes through gonum's native-Go
// cblas-compatible implementation, so the module builds on any platform
// without CGO. The wrappers keep the classic sgemm calling convention
// (row-major, explicit leading dimensions) so call sites read like BLAS.

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/gonum"
)

var blasImpl gonum.Implementation

// sgemm computes C = alpha*A@B + beta*C.
// A: [m, k] row-major, B: [k, n] row-major, C: [m, n] row-major.
//
// The early return on zero dimensions keeps degenerate slices out of the
// BLAS kernel, which expects non-empty operands.
func sgemm(m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	blasImpl.Sgemm(blas.NoTrans, blas.NoTrans,
		m, n, k,
		alpha, a, lda,
		b, ldb,
		beta, c, ldc)
}

// sgemmTransB computes C = alpha*A@B^T + beta*C with the trans flag on B,
// avoiding a transposed copy. A: [m, k] row-major, B: [n, k] row-major
// (stored as N rows of K cols), C: [m, n] row-major.
//
// Used by Linear.Forward (weight stored as [out, in], need input @ weight^T).
func sgemmTransB(m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	blasImpl.Sgemm(blas.NoTrans, blas.Trans,
		m, n, k,
		alpha, a, lda,
		b, ldb,
		beta, c, ldc)
}
