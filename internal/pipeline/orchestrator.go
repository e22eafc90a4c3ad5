package pipeline

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/exif"
	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/internal/verify"
	"github.com/geomind-labs/geomind/pkg/geoclip"
	"github.com/geomind-labs/geomind/pkg/llm"
	"github.com/geomind-labs/geomind/pkg/vision"
)

// Options controls a reasoning run.
type Options struct {
	// LoopEnabled allows the confidence-gated loop back to hypothesizing.
	LoopEnabled bool
	// MaxIterations caps refinement loops; at least 1.
	MaxIterations int
	// ConfidenceThreshold terminates the loop once the prediction reaches
	// it, in [0, 1].
	ConfidenceThreshold float64
	// Strategy selects the retrieval strategy.
	Strategy Strategy
	// Verifiers names the enabled verifiers; empty enables all registered.
	Verifiers []string
	// UseJudge enables the LLM judge over the top candidates.
	UseJudge bool
	// TopK caps the candidate list.
	TopK int
	// MaxHypotheses caps the hypothesis list.
	MaxHypotheses int
	// MinHypothesisConfidence drops hypotheses below the floor.
	MinHypothesisConfidence float64
	// EXIFFallback degrades a vision failure to EXIF-only clues.
	EXIFFallback bool
}

// DefaultOptions returns the options used when the caller specifies
// nothing.
func DefaultOptions() Options {
	return Options{
		LoopEnabled:         true,
		MaxIterations:       3,
		ConfidenceThreshold: 0.7,
		Strategy:            StrategyFallback,
		UseJudge:            false,
		TopK:                10,
		MaxHypotheses:       5,
		EXIFFallback:        true,
	}
}

// ImageLoader reads the image bytes for a session.
type ImageLoader func(path string) ([]byte, error)

// Orchestrator owns the session and sequences the four stages through an
// explicit state machine. It is the only entry point other code should
// call.
type Orchestrator struct {
	perception   *PerceptionStage
	hypothesis   *HypothesisStage
	retrieval    *RetrievalStage
	verification *VerificationStage
	loadImage    ImageLoader
	opts         Options
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithImageLoader overrides how image bytes are read.
func WithImageLoader(loader ImageLoader) OrchestratorOption {
	return func(o *Orchestrator) {
		o.loadImage = loader
	}
}

// WithScorerWeights overrides the evidence blend weights.
func WithScorerWeights(priorWeight, evidenceWeight float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.verification.scorer = NewScorer(priorWeight, evidenceWeight)
	}
}

// New assembles an orchestrator from the collaborator clients.
func New(
	visionModel vision.Model,
	textModel llm.Model,
	retrievalClient geoclip.Client,
	exifReader exif.Reader,
	registry verify.Registry,
	opts Options,
	extra ...OrchestratorOption,
) *Orchestrator {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}

	names := opts.Verifiers
	if len(names) == 0 {
		names = registry.Names()
	}

	verificationOpts := []VerificationOption{}
	if opts.UseJudge {
		verificationOpts = append(verificationOpts, WithJudge(textModel, defaultJudgeTopN))
	}

	o := &Orchestrator{
		perception: NewPerceptionStage(visionModel, exifReader, WithEXIFFallback(opts.EXIFFallback)),
		hypothesis: NewHypothesisStage(textModel,
			WithMaxHypotheses(opts.MaxHypotheses),
			WithMinConfidence(opts.MinHypothesisConfidence),
		),
		retrieval: NewRetrievalStage(retrievalClient,
			WithStrategy(opts.Strategy),
			WithTopK(opts.TopK),
		),
		verification: NewVerificationStage(registry.Select(names), verificationOpts...),
		loadImage:    os.ReadFile,
		opts:         opts,
	}
	for _, opt := range extra {
		opt(o)
	}
	return o
}

// RunSession executes the full pipeline for one image file and returns
// the session. On failure the session carries the terminal error and
// whatever partial progress the stages made, for diagnostics.
func (o *Orchestrator) RunSession(ctx context.Context, imagePath string) (*model.Session, error) {
	sess := model.NewSession(imagePath)

	image, err := o.loadImage(imagePath)
	if err != nil {
		sess.Err = eris.Wrap(err, "pipeline: load image")
		return sess, sess.Err
	}

	return o.run(ctx, sess, image)
}

// RunImage executes the full pipeline over in-memory image bytes. The name
// is used only for diagnostics.
func (o *Orchestrator) RunImage(ctx context.Context, name string, image []byte) (*model.Session, error) {
	return o.run(ctx, model.NewSession(name), image)
}

func (o *Orchestrator) run(ctx context.Context, sess *model.Session, image []byte) (*model.Session, error) {
	state := model.PhasePerceiving
	for state != model.PhaseDone {
		var stageErr error

		switch state {
		case model.PhasePerceiving:
			sess.Phase = state
			stageErr = o.perception.Run(ctx, sess, image)
			state = model.PhaseHypothesizing

		case model.PhaseHypothesizing:
			sess.Phase = state
			stageErr = o.hypothesis.Run(ctx, sess)
			state = model.PhaseRetrieving

		case model.PhaseRetrieving:
			sess.Phase = state
			stageErr = o.retrieval.Run(ctx, sess, image)
			state = model.PhaseVerifying

		case model.PhaseVerifying:
			sess.Phase = state
			stageErr = o.verification.Run(ctx, sess)
			if stageErr == nil {
				state = o.afterVerify(sess)
			}

		case model.PhaseLooping:
			sess.Iteration++
			zap.L().Info("prediction under threshold, refining hypotheses",
				zap.String("session", sess.ID),
				zap.Int("iteration", sess.Iteration),
				zap.Float64("confidence", sess.Prediction.Confidence),
			)
			state = model.PhaseHypothesizing
		}

		if stageErr != nil {
			sess.Err = stageErr
			zap.L().Error("session terminated",
				zap.String("session", sess.ID),
				zap.String("phase", string(sess.Phase)),
				zap.Error(stageErr),
			)
			return sess, stageErr
		}
	}

	sess.Phase = model.PhaseDone
	zap.L().Info("session complete", zap.String("summary", sess.Summary()))
	return sess, nil
}

// Run executes the pipeline and returns only the final prediction.
func (o *Orchestrator) Run(ctx context.Context, imagePath string) (*model.Prediction, error) {
	sess, err := o.RunSession(ctx, imagePath)
	if err != nil {
		return nil, err
	}
	return sess.Prediction, nil
}

// afterVerify decides the one conditional edge in the state machine: loop
// back to hypothesizing while the prediction is under the confidence
// threshold and iterations remain, otherwise terminate.
func (o *Orchestrator) afterVerify(sess *model.Session) model.Phase {
	if !o.opts.LoopEnabled {
		return model.PhaseDone
	}
	if sess.Prediction.Confidence >= o.opts.ConfidenceThreshold {
		return model.PhaseDone
	}
	if sess.Iteration >= o.opts.MaxIterations-1 {
		return model.PhaseDone
	}
	return model.PhaseLooping
}
