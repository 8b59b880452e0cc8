// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAnswer(t *testing.T) {
	assert.Equal(t, "quick brown fox", normalizeAnswer("The Quick,  Brown fox!"))
	assert.Equal(t, "21 points", normalizeAnswer("21 points."))
	assert.Equal(t, "", normalizeAnswer("the a an"))
}

func TestEmF1ExactMatch(t *testing.T) {
	var acc EmF1Accumulator
	acc.Observe("21 points", []string{"21 points."})
	em, f1 := acc.Metrics()
	assert.Equal(t, 1.0, em)
	assert.Equal(t, 1.0, f1)
}

func TestEmF1PartialOverlap(t *testing.T) {
	var acc EmF1Accumulator
	// "touchdown pass" vs "touchdown": precision 1/2, recall 1/1.
	acc.Observe("touchdown pass", []string{"touchdown"})
	em, f1 := acc.Metrics()
	assert.Equal(t, 0.0, em)
	assert.InDelta(t, 2.0/3.0, f1, 1e-9)
}

func TestEmF1MaxOverReferences(t *testing.T) {
	var acc EmF1Accumulator
	acc.Observe("seven", []string{"eight", "seven", "7"})
	em, f1 := acc.Metrics()
	assert.Equal(t, 1.0, em)
	assert.Equal(t, 1.0, f1)
}

func TestEmF1AveragesOverObservations(t *testing.T) {
	var acc EmF1Accumulator
	acc.Observe("right", []string{"right"})
	acc.Observe("wrong", []string{"other"})
	em, _ := acc.Metrics()
	assert.Equal(t, 0.5, em)
	assert.Equal(t, 2, acc.Count())
}

func TestEmF1IgnoresEmptyReferences(t *testing.T) {
	var acc EmF1Accumulator
	acc.Observe("anything", nil)
	assert.Equal(t, 0, acc.Count())
}

func TestEmF1IndependentAccumulators(t *testing.T) {
	var train, valid EmF1Accumulator
	train.Observe("x", []string{"x"})
	em, _ := valid.Metrics()
	assert.Equal(t, 0.0, em)
	assert.Equal(t, 0, valid.Count())
}

func TestEmF1Reset(t *testing.T) {
	var acc EmF1Accumulator
	acc.Observe("x", []string{"x"})
	acc.Reset()
	assert.Equal(t, 0, acc.Count())
	em, f1 := acc.Metrics()
	assert.Equal(t, 0.0, em)
	assert.Equal(t, 0.0, f1)
}
