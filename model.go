// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 kl2806

package drop

import "fmt"

// Model is the full reading-comprehension scorer: bidirectional
// attention fusion between question and passage, iterative modeling
// refinement, and one scorer head per configured answer kind behind a
// shared answer-type gate. Training marginalizes the gold annotation
// over kinds and derivations; prediction decodes greedily.
type Model struct {
	cfg Config

	questionEncoder Seq2SeqEncoder
	passageEncoder  Seq2SeqEncoder
	fusion          *BiAttentionFusion
	refine          *ModelingRefinement

	passagePool  *AttentionPool
	questionPool *AttentionPool
	gate         *TypeGate

	passageSpanHead  *SpanHead
	questionSpanHead *SpanHead
	signHead         *SignHead
	countHead        *CountHead
}

// NewModel wires the model from a validated config and injected
// encoders. questionEncoder and passageEncoder must produce
// cfg.EncodingDim features; modelingEncoder must preserve
// cfg.ModelingDim so its output can be re-read each pass.
func NewModel(cfg Config, questionEncoder, passageEncoder, modelingEncoder Seq2SeqEncoder, attention MatrixAttention) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if questionEncoder.OutputDim() != cfg.EncodingDim {
		return nil, fmt.Errorf("question encoder outputs %d features, config wants %d", questionEncoder.OutputDim(), cfg.EncodingDim)
	}
	if passageEncoder.OutputDim() != cfg.EncodingDim {
		return nil, fmt.Errorf("passage encoder outputs %d features, config wants %d", passageEncoder.OutputDim(), cfg.EncodingDim)
	}
	if modelingEncoder.InputDim() != cfg.ModelingDim || modelingEncoder.OutputDim() != cfg.ModelingDim {
		return nil, fmt.Errorf("modeling encoder must preserve width %d, got %d -> %d",
			cfg.ModelingDim, modelingEncoder.InputDim(), modelingEncoder.OutputDim())
	}

	m := &Model{
		cfg:             cfg,
		questionEncoder: questionEncoder,
		passageEncoder:  passageEncoder,
		fusion:          NewBiAttentionFusion(attention),
		refine:          NewModelingRefinement(4*cfg.EncodingDim, modelingEncoder, cfg.ModelingPasses),
		passagePool:     NewAttentionPool(cfg.ModelingDim),
		questionPool:    NewAttentionPool(cfg.EncodingDim),
		gate:            NewTypeGate(cfg.ModelingDim, cfg.EncodingDim, cfg.hiddenDim(), len(cfg.Kinds)),
	}
	if cfg.hasKind(PassageSpanAnswer) {
		m.passageSpanHead = NewSpanHead(2*cfg.ModelingDim, cfg.hiddenDim())
	}
	if cfg.hasKind(QuestionSpanAnswer) {
		m.questionSpanHead = NewSpanHead(cfg.EncodingDim+cfg.ModelingDim, cfg.hiddenDim())
	}
	if cfg.hasKind(ArithmeticAnswer) {
		m.signHead = NewSignHead(cfg.NumberEmbedDim, cfg.ModelingDim)
	}
	if cfg.hasKind(CountAnswer) {
		m.countHead = NewCountHead(cfg.ModelingDim)
	}
	return m, nil
}

// Config returns the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// Parameters returns every learnable tensor in the model.
func (m *Model) Parameters() []*Tensor {
	params := concatParams(
		m.questionEncoder.Parameters(),
		m.passageEncoder.Parameters(),
		m.fusion.Parameters(),
		m.refine.Parameters(),
		m.passagePool.Parameters(),
		m.questionPool.Parameters(),
		m.gate.Parameters(),
	)
	if m.passageSpanHead != nil {
		params = concatParams(params, m.passageSpanHead.Parameters())
	}
	if m.questionSpanHead != nil {
		params = concatParams(params, m.questionSpanHead.Parameters())
	}
	if m.signHead != nil {
		params = concatParams(params, m.signHead.Parameters())
	}
	if m.countHead != nil {
		params = concatParams(params, m.countHead.Parameters())
	}
	return params
}

// ---------------------------------------------------------------------------
// Batch and output
// ---------------------------------------------------------------------------

// Batch is one forward pass worth of embedded inputs. Question and
// Passage carry pre-encoder token embeddings; the masks mark real tokens
// with 1 and padding with 0. Numbers and NumbersMask are only consulted
// when ArithmeticAnswer is configured. Annotations (when non-nil)
// trigger the loss; Metadata (when non-nil) triggers answer decoding.
type Batch struct {
	Question     *Tensor // [B, Q, questionEncoder.InputDim()]
	Passage      *Tensor // [B, P, passageEncoder.InputDim()]
	QuestionMask *Tensor // [B, Q]
	PassageMask  *Tensor // [B, P]

	Numbers     *Tensor // [B, N, NumberEmbedDim]
	NumbersMask *Tensor // [B, N]

	Annotations []Annotation
	Metadata    []ExampleMetadata

	// Metrics, when set alongside Metadata, observes each decoded
	// answer against its example's reference answer texts. The
	// accumulator belongs to the caller; the model only feeds it.
	Metrics *EmF1Accumulator
}

// Output carries everything the forward pass produced. Tensors for
// unconfigured kinds are nil.
type Output struct {
	// Loss is the mean negative marginal log-likelihood over the batch.
	// Only meaningful when HasLoss is true.
	Loss    float32
	HasLoss bool

	// GateLogProbs is [B, K] with column k scoring Config().Kinds[k].
	GateLogProbs *Tensor

	PassageSpanStartLogProbs *Tensor // [B, P]
	PassageSpanEndLogProbs   *Tensor // [B, P]
	BestPassageSpans         []Span

	QuestionSpanStartLogProbs *Tensor // [B, Q]
	QuestionSpanEndLogProbs   *Tensor // [B, Q]
	BestQuestionSpans         []Span

	SignProbs  *Tensor // [B, N, 3]
	CountProbs *Tensor // [B, CountVocabularySize]

	// PassageQuestionAttention is the [B, P, Q] attention from fusion,
	// kept for inspection.
	PassageQuestionAttention *Tensor

	// Predictions is one decoded answer per example, present when the
	// batch carried metadata.
	Predictions []PredictedAnswer
}

// ---------------------------------------------------------------------------
// Forward
// ---------------------------------------------------------------------------

// Forward runs one batch through the model. Panics on malformed inputs:
// shape mismatches, missing arithmetic inputs, or a passage row with no
// valid token.
func (m *Model) Forward(batch *Batch) *Output {
	m.checkBatch(batch)

	encodedQuestion := m.questionEncoder.Forward(batch.Question, batch.QuestionMask)
	encodedPassage := m.passageEncoder.Forward(batch.Passage, batch.PassageMask)

	fused := m.fusion.Forward(encodedPassage, encodedQuestion, batch.PassageMask, batch.QuestionMask)
	snapshots := m.refine.Forward(fused.Fused, batch.PassageMask)

	passageVector := m.passagePool.Forward(snapshots[len(snapshots)-1], batch.PassageMask)
	questionVector := m.questionPool.Forward(encodedQuestion, batch.QuestionMask)

	out := &Output{
		GateLogProbs:             m.gate.Forward(passageVector, questionVector),
		PassageQuestionAttention: fused.PassageQuestionAttention,
	}

	if m.passageSpanHead != nil {
		startInput := ConcatLastDim(snapshots[1], snapshots[2])
		endInput := ConcatLastDim(snapshots[1], snapshots[3])
		startLogits, endLogits := m.passageSpanHead.Forward(startInput, endInput)
		out.PassageSpanStartLogProbs = MaskedLogSoftmax(startLogits, batch.PassageMask)
		out.PassageSpanEndLogProbs = MaskedLogSoftmax(endLogits, batch.PassageMask)
		out.BestPassageSpans = bestSpansBatch(startLogits, endLogits, batch.PassageMask)
	}
	if m.questionSpanHead != nil {
		questionLen := encodedQuestion.Shape().At(1)
		conditioned := ConcatLastDim(encodedQuestion, tileVector(passageVector, questionLen))
		startLogits, endLogits := m.questionSpanHead.Forward(conditioned, conditioned)
		out.QuestionSpanStartLogProbs = MaskedLogSoftmax(startLogits, batch.QuestionMask)
		out.QuestionSpanEndLogProbs = MaskedLogSoftmax(endLogits, batch.QuestionMask)
		out.BestQuestionSpans = bestSpansBatch(startLogits, endLogits, batch.QuestionMask)
	}
	if m.signHead != nil {
		out.SignProbs = m.signHead.Forward(batch.Numbers, batch.NumbersMask, passageVector)
	}
	if m.countHead != nil {
		out.CountProbs = m.countHead.Forward(passageVector)
	}

	if batch.Annotations != nil {
		out.Loss = m.marginalLoss(batch, out)
		out.HasLoss = true
	}
	if batch.Metadata != nil {
		out.Predictions = m.decodeBatch(batch, out)
	}
	return out
}

// marginalLoss computes the mean negative log of the gate-weighted sum
// of per-kind marginal likelihoods.
func (m *Model) marginalLoss(batch *Batch, out *Output) float32 {
	numExamples := len(batch.Annotations)
	var total float32
	kindLLs := make([]float32, len(m.cfg.Kinds))
	present := make([]bool, len(m.cfg.Kinds))
	for b := 0; b < numExamples; b++ {
		ann := &batch.Annotations[b]
		for k, kind := range m.cfg.Kinds {
			present[k] = ann.HasAny(kind)
			if !present[k] {
				kindLLs[k] = 0
				continue
			}
			switch kind {
			case PassageSpanAnswer:
				kindLLs[k] = spanLogMarginal(
					tensorRow(out.PassageSpanStartLogProbs, b),
					tensorRow(out.PassageSpanEndLogProbs, b),
					ann.PassageSpans)
			case QuestionSpanAnswer:
				kindLLs[k] = spanLogMarginal(
					tensorRow(out.QuestionSpanStartLogProbs, b),
					tensorRow(out.QuestionSpanEndLogProbs, b),
					ann.QuestionSpans)
			case ArithmeticAnswer:
				kindLLs[k] = arithmeticLogMarginal(
					tensorRow(out.SignProbs, b),
					tensorRow(batch.NumbersMask, b),
					ann.Combinations)
			case CountAnswer:
				kindLLs[k] = countLogMarginal(tensorRow(out.CountProbs, b), ann.Counts)
			}
		}
		total += combineKindLogLikelihoods(tensorRow(out.GateLogProbs, b), kindLLs, present)
	}
	return -total / float32(numExamples)
}

// decodeBatch greedily decodes one answer per example.
func (m *Model) decodeBatch(batch *Batch, out *Output) []PredictedAnswer {
	numExamples := len(batch.Metadata)
	predictions := make([]PredictedAnswer, numExamples)
	candidates := make([]kindCandidate, len(m.cfg.Kinds))
	for b := 0; b < numExamples; b++ {
		meta := batch.Metadata[b]
		for k, kind := range m.cfg.Kinds {
			switch kind {
			case PassageSpanAnswer:
				text, offsets := spanSourceText(kind, meta)
				candidates[k] = decodeSpan(kind,
					tensorRow(out.PassageSpanStartLogProbs, b),
					tensorRow(out.PassageSpanEndLogProbs, b),
					text, offsets)
			case QuestionSpanAnswer:
				text, offsets := spanSourceText(kind, meta)
				candidates[k] = decodeSpan(kind,
					tensorRow(out.QuestionSpanStartLogProbs, b),
					tensorRow(out.QuestionSpanEndLogProbs, b),
					text, offsets)
			case ArithmeticAnswer:
				candidates[k] = decodeArithmetic(
					tensorRow(out.SignProbs, b),
					tensorRow(batch.NumbersMask, b),
					meta.OriginalNumbers)
			case CountAnswer:
				candidates[k] = decodeCount(tensorRow(out.CountProbs, b))
			}
		}
		predictions[b] = pickBest(tensorRow(out.GateLogProbs, b), candidates)
		predictions[b].QuestionID = meta.QuestionID
		if batch.Metrics != nil {
			batch.Metrics.Observe(predictions[b].Text, meta.AnswerTexts)
		}
	}
	return predictions
}

// checkBatch panics on inputs the forward pass cannot make sense of.
func (m *Model) checkBatch(batch *Batch) {
	if batch.Question == nil || batch.Passage == nil || batch.QuestionMask == nil || batch.PassageMask == nil {
		panic("batch is missing question or passage inputs")
	}
	numExamples := batch.Passage.Shape().At(0)
	if batch.Question.Shape().At(0) != numExamples {
		panic(fmt.Sprintf("question batch %d does not match passage batch %d",
			batch.Question.Shape().At(0), numExamples))
	}
	if m.cfg.hasKind(ArithmeticAnswer) && (batch.Numbers == nil || batch.NumbersMask == nil) {
		panic("arithmetic answers configured but batch carries no numbers")
	}
	if batch.Annotations != nil && len(batch.Annotations) != numExamples {
		panic(fmt.Sprintf("got %d annotations for %d examples", len(batch.Annotations), numExamples))
	}
	if batch.Metadata != nil && len(batch.Metadata) != numExamples {
		panic(fmt.Sprintf("got %d metadata entries for %d examples", len(batch.Metadata), numExamples))
	}
	// Span search over an empty passage has no answer.
	requireValidToken(batch.PassageMask, "passage")
	requireValidToken(batch.QuestionMask, "question")
}

// requireValidToken panics if any mask row is entirely zero.
func requireValidToken(mask *Tensor, name string) {
	batch, length := mask.Shape().At(0), mask.Shape().At(1)
	data := mask.DataPtr()
	for b := 0; b < batch; b++ {
		ok := false
		for i := 0; i < length; i++ {
			if data[b*length+i] > 0 {
				ok = true
				break
			}
		}
		if !ok {
			panic(fmt.Sprintf("%s mask row %d has no valid token", name, b))
		}
	}
}

// tensorRow returns example b's flat slice of t, whatever t's trailing
// shape is.
func tensorRow(t *Tensor, b int) []float32 {
	stride := t.Shape().Numel() / t.Shape().At(0)
	return t.DataPtr()[b*stride : (b+1)*stride]
}
