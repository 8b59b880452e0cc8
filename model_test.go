// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmbedDim     = 6
	testEncodingDim  = 8
	testModelingDim  = 10
	testNumberDim    = 4
	testBatch        = 2
	testPassageLen   = 4
	testQuestionLen  = 3
	testNumbersCount = 2
)

func newTestModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	m, err := NewModel(cfg,
		NewProjectionEncoder(testEmbedDim, cfg.EncodingDim),
		NewProjectionEncoder(testEmbedDim, cfg.EncodingDim),
		NewProjectionEncoder(cfg.ModelingDim, cfg.ModelingDim),
		NewLinearMatrixAttention(cfg.EncodingDim))
	require.NoError(t, err)
	return m
}

func newTestBatch() *Batch {
	return &Batch{
		Question:     Randn(NewShape(testBatch, testQuestionLen, testEmbedDim), F32),
		Passage:      Randn(NewShape(testBatch, testPassageLen, testEmbedDim), F32),
		QuestionMask: FromSlice([]float32{1, 1, 1, 1, 1, 0}, NewShape(testBatch, testQuestionLen)),
		PassageMask:  FromSlice([]float32{1, 1, 1, 1, 1, 1, 1, 0}, NewShape(testBatch, testPassageLen)),
		Numbers:      Randn(NewShape(testBatch, testNumbersCount, testNumberDim), F32),
		NumbersMask:  FromSlice([]float32{1, 1, 1, 0}, NewShape(testBatch, testNumbersCount)),
	}
}

func testAnnotations() []Annotation {
	return []Annotation{
		{
			PassageSpans: []Span{{Start: 0, End: 1}},
			Combinations: [][]int{{SignPlus, SignUnused}},
			Counts:       []int{2},
		},
		{
			PassageSpans: []Span{{Start: 1, End: 2}, {Start: -1, End: -1}},
		},
	}
}

func testMetadata() []ExampleMetadata {
	offsets := func(words int) []CharSpan {
		out := make([]CharSpan, words)
		for i := range out {
			out[i] = CharSpan{Begin: i * 2, End: i*2 + 1}
		}
		return out
	}
	meta := func(id string) ExampleMetadata {
		return ExampleMetadata{
			QuestionID:           id,
			OriginalPassage:      "a b c d",
			OriginalQuestion:     "x y z",
			PassageTokenOffsets:  offsets(testPassageLen),
			QuestionTokenOffsets: offsets(testQuestionLen),
			OriginalNumbers:      []float64{10, 2},
			AnswerTexts:          []string{"a b", "12"},
		}
	}
	return []ExampleMetadata{meta("q-0"), meta("q-1")}
}

func TestModelForwardShapes(t *testing.T) {
	m := newTestModel(t, ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim))
	out := m.Forward(newTestBatch())

	assert.True(t, out.GateLogProbs.Shape().Equal(NewShape(testBatch, 3)))
	assert.True(t, out.PassageSpanStartLogProbs.Shape().Equal(NewShape(testBatch, testPassageLen)))
	assert.True(t, out.PassageSpanEndLogProbs.Shape().Equal(NewShape(testBatch, testPassageLen)))
	assert.True(t, out.SignProbs.Shape().Equal(NewShape(testBatch, testNumbersCount, 3)))
	assert.True(t, out.CountProbs.Shape().Equal(NewShape(testBatch, CountVocabularySize)))
	assert.True(t, out.PassageQuestionAttention.Shape().Equal(NewShape(testBatch, testPassageLen, testQuestionLen)))
	assert.Nil(t, out.QuestionSpanStartLogProbs)
	assert.False(t, out.HasLoss)

	require.Len(t, out.BestPassageSpans, testBatch)
	for i, sp := range out.BestPassageSpans {
		assert.LessOrEqual(t, sp.Start, sp.End, "example %d", i)
		assert.GreaterOrEqual(t, sp.Start, 0, "example %d", i)
		assert.Less(t, sp.End, testPassageLen, "example %d", i)
	}
}

func TestGateProbabilitiesSumToOne(t *testing.T) {
	m := newTestModel(t, ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim))
	out := m.Forward(newTestBatch())
	for b := 0; b < testBatch; b++ {
		var sum float32
		for _, lp := range tensorRow(out.GateLogProbs, b) {
			sum += ExpF32(lp)
		}
		assert.InDelta(t, 1.0, float64(sum), 1e-3, "example %d", b)
	}
}

func TestModelForwardDeterministic(t *testing.T) {
	m := newTestModel(t, SpanOnlyConfig(testEncodingDim, testModelingDim))
	batch := newTestBatch()
	first := m.Forward(batch)
	second := m.Forward(batch)
	assert.Equal(t, first.PassageSpanStartLogProbs.Data(), second.PassageSpanStartLogProbs.Data())
	assert.Equal(t, first.BestPassageSpans, second.BestPassageSpans)
}

func TestModelLoss(t *testing.T) {
	m := newTestModel(t, ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim))
	batch := newTestBatch()
	batch.Annotations = testAnnotations()
	out := m.Forward(batch)

	require.True(t, out.HasLoss)
	assert.False(t, math.IsNaN(float64(out.Loss)))
	assert.False(t, math.IsInf(float64(out.Loss), 0))
	assert.Greater(t, out.Loss, float32(0), "negative log-likelihood of untrained model")
}

func TestModelLossNeverRisesWithMoreDerivations(t *testing.T) {
	m := newTestModel(t, SpanOnlyConfig(testEncodingDim, testModelingDim))
	batch := newTestBatch()

	batch.Annotations = []Annotation{
		{PassageSpans: []Span{{Start: 0, End: 1}}},
		{PassageSpans: []Span{{Start: 1, End: 2}}},
	}
	one := m.Forward(batch).Loss

	batch.Annotations = []Annotation{
		{PassageSpans: []Span{{Start: 0, End: 1}, {Start: 2, End: 3}}},
		{PassageSpans: []Span{{Start: 1, End: 2}}},
	}
	two := m.Forward(batch).Loss

	assert.LessOrEqual(t, two, one, "extra gold derivation must not raise the loss")
}

func TestLossNearZeroWithMassOnAnnotatedSpan(t *testing.T) {
	// One configured kind makes the gate log-prob exactly 0, so the loss
	// reduces to the span marginal. Concentrate the span distributions on
	// the annotated boundaries and the loss must approach 0.
	m := newTestModel(t, SpanOnlyConfig(testEncodingDim, testModelingDim))
	batch := newTestBatch()
	batch.Annotations = []Annotation{
		{PassageSpans: []Span{{Start: 2, End: 3}}},
		{PassageSpans: []Span{{Start: 0, End: 1}}},
	}

	sharp := func(peak int) []float32 {
		row := make([]float32, testPassageLen)
		for i := range row {
			row[i] = -20
		}
		row[peak] = LogF32(0.999)
		return row
	}
	out := &Output{
		GateLogProbs: Zeros(NewShape(testBatch, 1), F32),
		PassageSpanStartLogProbs: FromSlice(
			append(sharp(2), sharp(0)...), NewShape(testBatch, testPassageLen)),
		PassageSpanEndLogProbs: FromSlice(
			append(sharp(3), sharp(1)...), NewShape(testBatch, testPassageLen)),
	}

	loss := m.marginalLoss(batch, out)
	assert.InDelta(t, 0.0, float64(loss), 1e-2)
	assert.Greater(t, loss, float32(0), "likelihood never exceeds 1")
}

func TestModelPredictions(t *testing.T) {
	cfg := ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim)
	m := newTestModel(t, cfg)
	batch := newTestBatch()
	batch.Metadata = testMetadata()
	out := m.Forward(batch)

	require.Len(t, out.Predictions, testBatch)
	for i, pred := range out.Predictions {
		assert.True(t, cfg.hasKind(pred.Kind), "example %d predicted unconfigured kind %v", i, pred.Kind)
		assert.NotEmpty(t, pred.Text, "example %d", i)
		assert.Greater(t, pred.Score, float32(0), "example %d", i)
		assert.LessOrEqual(t, pred.Score, float32(1), "example %d", i)
	}
}

func TestPredictionsCarryQuestionIDsInInputOrder(t *testing.T) {
	m := newTestModel(t, ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim))
	batch := newTestBatch()
	batch.Metadata = testMetadata()
	out := m.Forward(batch)

	require.Len(t, out.Predictions, testBatch)
	for i, pred := range out.Predictions {
		assert.Equal(t, batch.Metadata[i].QuestionID, pred.QuestionID, "example %d", i)
	}
}

func TestForwardFeedsMetricsAccumulator(t *testing.T) {
	m := newTestModel(t, ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim))
	batch := newTestBatch()
	batch.Metadata = testMetadata()
	batch.Metrics = &EmF1Accumulator{}
	m.Forward(batch)

	require.Equal(t, testBatch, batch.Metrics.Count())
	em, f1 := batch.Metrics.Metrics()
	assert.GreaterOrEqual(t, em, 0.0)
	assert.LessOrEqual(t, em, 1.0)
	assert.GreaterOrEqual(t, f1, em, "token F1 is bounded below by exact match")
}

func TestQuestionSpanVariant(t *testing.T) {
	m := newTestModel(t, QuestionSpanConfig(testEncodingDim, testModelingDim))
	batch := newTestBatch()
	batch.Numbers, batch.NumbersMask = nil, nil
	out := m.Forward(batch)

	require.NotNil(t, out.QuestionSpanStartLogProbs)
	assert.True(t, out.QuestionSpanStartLogProbs.Shape().Equal(NewShape(testBatch, testQuestionLen)))
	assert.Len(t, out.BestQuestionSpans, testBatch)
	assert.Nil(t, out.SignProbs)
	assert.Nil(t, out.CountProbs)
}

func TestModelPanicsOnEmptyPassageRow(t *testing.T) {
	m := newTestModel(t, SpanOnlyConfig(testEncodingDim, testModelingDim))
	batch := newTestBatch()
	batch.PassageMask = FromSlice([]float32{1, 1, 1, 1, 0, 0, 0, 0}, NewShape(testBatch, testPassageLen))
	require.Panics(t, func() { m.Forward(batch) })
}

func TestModelPanicsWithoutNumbers(t *testing.T) {
	m := newTestModel(t, ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim))
	batch := newTestBatch()
	batch.Numbers = nil
	require.Panics(t, func() { m.Forward(batch) })
}

func TestNewModelRejectsDimMismatch(t *testing.T) {
	cfg := SpanOnlyConfig(testEncodingDim, testModelingDim)
	_, err := NewModel(cfg,
		NewProjectionEncoder(testEmbedDim, cfg.EncodingDim+1),
		NewProjectionEncoder(testEmbedDim, cfg.EncodingDim),
		NewProjectionEncoder(cfg.ModelingDim, cfg.ModelingDim),
		NewLinearMatrixAttention(cfg.EncodingDim))
	require.Error(t, err)
}

func TestModelParametersNonEmpty(t *testing.T) {
	m := newTestModel(t, ArithmeticConfig(testEncodingDim, testModelingDim, testNumberDim))
	params := m.Parameters()
	assert.NotEmpty(t, params)
	for _, p := range params {
		require.NotNil(t, p)
	}
}
