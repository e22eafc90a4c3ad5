package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomind-labs/geomind/internal/model"
)

func cluesWithText(texts ...string) *model.Clues {
	clues := &model.Clues{}
	for _, text := range texts {
		clues.OCR = append(clues.OCR, model.OCRSnippet{Text: text, Confidence: 0.9})
	}
	return clues
}

func TestHypothesis_RanksAndCapsResults(t *testing.T) {
	llm := llmReturningJSON(`[
		{"region": "Osaka, Japan", "confidence": 0.55},
		{"region": "Tokyo, Japan", "confidence": 0.9, "supporting": ["tower signage"]},
		{"region": "", "confidence": 0.99},
		{"region": "Seoul, South Korea", "confidence": 0.2}
	]`)
	stage := NewHypothesisStage(llm, WithMaxHypotheses(2))
	sess := model.NewSession("tokyo.jpg")
	sess.Clues = cluesWithText("東京タワー")

	err := stage.Run(context.Background(), sess)
	require.NoError(t, err)

	require.Len(t, sess.Hypotheses, 2)
	assert.Equal(t, "Tokyo, Japan", sess.Hypotheses[0].Region)
	assert.Equal(t, "Osaka, Japan", sess.Hypotheses[1].Region)
	for _, h := range sess.Hypotheses {
		assert.GreaterOrEqual(t, h.Confidence, 0.0)
		assert.LessOrEqual(t, h.Confidence, 1.0)
	}
}

func TestHypothesis_ConfidenceFloorFiltersWeakGuesses(t *testing.T) {
	llm := llmReturningJSON(`[
		{"region": "Tokyo, Japan", "confidence": 0.9},
		{"region": "Seoul, South Korea", "confidence": 0.2}
	]`)
	stage := NewHypothesisStage(llm, WithMinConfidence(0.5))
	sess := model.NewSession("tokyo.jpg")
	sess.Clues = cluesWithText("東京タワー")

	err := stage.Run(context.Background(), sess)
	require.NoError(t, err)

	require.Len(t, sess.Hypotheses, 1)
	assert.Equal(t, "Tokyo, Japan", sess.Hypotheses[0].Region)
}

func TestHypothesis_MissingCluesIsValidationError(t *testing.T) {
	stage := NewHypothesisStage(llmReturningJSON("[]"))
	sess := model.NewSession("tokyo.jpg")

	err := stage.Run(context.Background(), sess)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, model.PhaseHypothesizing, verr.Stage)
}

func TestHypothesis_NoSignalEmitsPlaceholderWithoutModelCall(t *testing.T) {
	llm := &stubLLM{structured: func(context.Context, string, any) error {
		t.Fatal("model must not be called for a featureless image")
		return nil
	}}
	stage := NewHypothesisStage(llm)
	sess := model.NewSession("ocean.jpg")
	sess.Clues = &model.Clues{}

	err := stage.Run(context.Background(), sess)
	require.NoError(t, err)

	require.Len(t, sess.Hypotheses, 1)
	assert.Equal(t, "unknown", sess.Hypotheses[0].Region)
	assert.Equal(t, placeholderConfidence, sess.Hypotheses[0].Confidence)
	assert.Zero(t, llm.callCount())
}

func TestHypothesis_ModelFailureIsServiceError(t *testing.T) {
	llm := &stubLLM{structured: func(context.Context, string, any) error {
		return errors.New("llm: overloaded")
	}}
	stage := NewHypothesisStage(llm)
	sess := model.NewSession("tokyo.jpg")
	sess.Clues = cluesWithText("東京タワー")

	err := stage.Run(context.Background(), sess)

	var serr *ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, model.PhaseHypothesizing, serr.Stage)
	assert.Empty(t, sess.Hypotheses)
}

func TestHypothesis_EmptyModelOutputIsNoSurvivors(t *testing.T) {
	stage := NewHypothesisStage(llmReturningJSON(`[{"region": "  ", "confidence": 0.9}]`))
	sess := model.NewSession("tokyo.jpg")
	sess.Clues = cluesWithText("東京タワー")

	err := stage.Run(context.Background(), sess)

	var nerr *NoSurvivorsError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, model.PhaseHypothesizing, nerr.Stage)
}

func TestHypothesis_PreviousRoundFeedsRefinementContext(t *testing.T) {
	llm := llmReturningJSON(`[{"region": "Kyoto, Japan", "confidence": 0.8}]`)
	stage := NewHypothesisStage(llm)
	sess := model.NewSession("kyoto.jpg")
	sess.Clues = cluesWithText("清水寺")
	sess.Hypotheses = []model.Hypothesis{{Region: "Nara, Japan", Confidence: 0.4}}

	err := stage.Run(context.Background(), sess)
	require.NoError(t, err)

	require.Equal(t, 1, llm.callCount())
	assert.Contains(t, llm.prompts[0], "Nara, Japan")
	// The previous round is replaced, not appended to.
	require.Len(t, sess.Hypotheses, 1)
	assert.Equal(t, "Kyoto, Japan", sess.Hypotheses[0].Region)
}

func TestSummarizeClues_CapsPerType(t *testing.T) {
	clues := &model.Clues{}
	for i := 0; i < 14; i++ {
		clues.OCR = append(clues.OCR, model.OCRSnippet{Text: "sign", Confidence: 0.5})
	}

	summary := summarizeClues(clues)
	assert.Contains(t, summary, "... and 4 more text fragments")
	assert.Equal(t, maxCluesPerType, strings.Count(summary, `"sign"`))
}
