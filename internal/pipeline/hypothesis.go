package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/pkg/llm"
)

// maxCluesPerType caps how many items of each clue type go into the
// prompt, keeping prompt size bounded on text-heavy images.
const maxCluesPerType = 10

// placeholderConfidence is assigned to the single hypothesis emitted for a
// featureless image, keeping the pipeline moving without a model call.
const placeholderConfidence = 0.30

// HypothesisStage turns clues into ranked region hypotheses via the text
// model.
type HypothesisStage struct {
	model         llm.Model
	maxHypotheses int
	minConfidence float64
	refineRounds  int
}

// HypothesisOption configures the stage.
type HypothesisOption func(*HypothesisStage)

// WithMaxHypotheses caps the hypothesis list. Default 5.
func WithMaxHypotheses(n int) HypothesisOption {
	return func(s *HypothesisStage) {
		if n > 0 {
			s.maxHypotheses = n
		}
	}
}

// WithMinConfidence drops hypotheses below the floor. Default 0 (keep all).
func WithMinConfidence(floor float64) HypothesisOption {
	return func(s *HypothesisStage) {
		s.minConfidence = floor
	}
}

// WithRefineRounds re-invokes the model this many times total, feeding each
// round's hypotheses back in as context. Default 1 (single shot).
func WithRefineRounds(n int) HypothesisOption {
	return func(s *HypothesisStage) {
		if n > 0 {
			s.refineRounds = n
		}
	}
}

// NewHypothesisStage builds the hypothesis stage.
func NewHypothesisStage(m llm.Model, opts ...HypothesisOption) *HypothesisStage {
	s := &HypothesisStage{
		model:         m,
		maxHypotheses: 5,
		refineRounds:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run produces hypotheses from the session's clues and writes them to the
// session, replacing any previous round's list. Existing hypotheses are
// fed back as refinement context. The session is untouched on error.
func (s *HypothesisStage) Run(ctx context.Context, sess *model.Session) error {
	if sess.Clues == nil {
		return &ValidationError{Stage: model.PhaseHypothesizing, Msg: "perception has not produced clues"}
	}

	// A featureless image gets one low-confidence placeholder instead of
	// a model call that has nothing to reason over.
	if !sess.Clues.HasSignal() {
		sess.Hypotheses = []model.Hypothesis{{
			Region:     "unknown",
			Rationale:  []string{"image contains no recognizable text, visual traits, or GPS data"},
			Confidence: placeholderConfidence,
		}}
		zap.L().Info("no signal in clues, emitting placeholder hypothesis",
			zap.String("session", sess.ID))
		return nil
	}

	prev := sess.Hypotheses
	var hyps []model.Hypothesis
	for round := 0; round < s.refineRounds; round++ {
		seed := prev
		if round > 0 {
			seed = hyps
		}

		next, err := s.generate(ctx, sess, seed)
		if err != nil {
			return err
		}
		hyps = next
	}

	if len(hyps) == 0 {
		return &NoSurvivorsError{Stage: model.PhaseHypothesizing, Msg: "model produced no usable hypotheses"}
	}

	sess.Hypotheses = hyps
	zap.L().Info("hypotheses generated",
		zap.String("session", sess.ID),
		zap.Int("count", len(hyps)),
		zap.String("top", hyps[0].Region),
		zap.Float64("top_confidence", hyps[0].Confidence),
	)
	return nil
}

func (s *HypothesisStage) generate(ctx context.Context, sess *model.Session, seed []model.Hypothesis) ([]model.Hypothesis, error) {
	refinement := ""
	if len(seed) > 0 {
		refinement = fmt.Sprintf(refinementContextTemplate, renderHypotheses(seed))
	}
	prompt := fmt.Sprintf(hypothesisPromptTemplate, s.maxHypotheses, summarizeClues(sess.Clues), refinement)

	var payloads []hypothesisPayload
	if err := s.model.GenerateStructured(ctx, prompt, &payloads); err != nil {
		// No safe default exists for a missing hypothesis list.
		return nil, &ServiceError{Stage: model.PhaseHypothesizing, Err: err}
	}

	hyps := validateHypotheses(payloads)

	if s.minConfidence > 0 {
		kept := hyps[:0]
		for _, h := range hyps {
			if h.Confidence >= s.minConfidence {
				kept = append(kept, h)
			}
		}
		hyps = kept
	}

	sort.SliceStable(hyps, func(i, j int) bool { return hyps[i].Confidence > hyps[j].Confidence })
	if len(hyps) > s.maxHypotheses {
		hyps = hyps[:s.maxHypotheses]
	}
	return hyps, nil
}

// summarizeClues renders clues as prompt text, capped per clue type.
func summarizeClues(clues *model.Clues) string {
	var sb strings.Builder

	if n := len(clues.OCR); n > 0 {
		sb.WriteString("Text visible in image:\n")
		for i, o := range clues.OCR {
			if i >= maxCluesPerType {
				fmt.Fprintf(&sb, "- ... and %d more text fragments\n", n-maxCluesPerType)
				break
			}
			fmt.Fprintf(&sb, "- %q", o.Text)
			if o.Language != "" {
				fmt.Fprintf(&sb, " (language: %s)", o.Language)
			}
			fmt.Fprintf(&sb, " [confidence %.2f]\n", o.Confidence)
		}
	}

	if n := len(clues.Observations); n > 0 {
		sb.WriteString("Visual observations:\n")
		for i, v := range clues.Observations {
			if i >= maxCluesPerType {
				fmt.Fprintf(&sb, "- ... and %d more observations\n", n-maxCluesPerType)
				break
			}
			fmt.Fprintf(&sb, "- %s: %s [confidence %.2f]\n", v.Category, v.Value, v.Confidence)
		}
	}

	meta := clues.Metadata
	if meta.GPS != nil {
		fmt.Fprintf(&sb, "EXIF GPS: %.5f, %.5f\n", meta.GPS.Lat, meta.GPS.Lon)
	}
	if meta.Timestamp != nil {
		fmt.Fprintf(&sb, "Captured: %s\n", meta.Timestamp.Format("2006-01-02 15:04 MST"))
	}
	if meta.SceneType != "" {
		fmt.Fprintf(&sb, "Scene type: %s\n", meta.SceneType)
	}

	if sb.Len() == 0 {
		return "(no clues)"
	}
	return sb.String()
}

func renderHypotheses(hyps []model.Hypothesis) string {
	var sb strings.Builder
	for i, h := range hyps {
		fmt.Fprintf(&sb, "%d. %s (confidence %.2f)", i+1, h.Region, h.Confidence)
		if len(h.Conflicting) > 0 {
			fmt.Fprintf(&sb, "; conflicts: %s", strings.Join(h.Conflicting, "; "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
