package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/internal/verify"
	"github.com/geomind-labs/geomind/pkg/llm"
)

// maxVerifyConcurrency bounds the per-candidate fan-out.
const maxVerifyConcurrency = 4

// maxRationaleItems caps how many pass evidence items go into the final
// rationale.
const maxRationaleItems = 3

// defaultJudgeTopN is how many candidates the judge reviews.
const defaultJudgeTopN = 5

// VerificationStage runs each candidate through the enabled verifiers,
// rescores candidates from the gathered evidence, and assembles the final
// prediction. An optional LLM judge may override the score ranking.
type VerificationStage struct {
	verifiers []verify.Verifier
	scorer    EvidenceScorer
	judge     llm.Model
	judgeTopN int
}

// VerificationOption configures the stage.
type VerificationOption func(*VerificationStage)

// WithScorer overrides the evidence blend weights.
func WithScorer(s EvidenceScorer) VerificationOption {
	return func(v *VerificationStage) {
		v.scorer = s
	}
}

// WithJudge enables the LLM judge over the top-N candidates.
func WithJudge(judge llm.Model, topN int) VerificationOption {
	return func(v *VerificationStage) {
		v.judge = judge
		if topN > 0 {
			v.judgeTopN = topN
		}
	}
}

// NewVerificationStage builds the verification stage with the given
// verifiers.
func NewVerificationStage(verifiers []verify.Verifier, opts ...VerificationOption) *VerificationStage {
	s := &VerificationStage{
		verifiers: verifiers,
		scorer:    DefaultScorer(),
		judgeTopN: defaultJudgeTopN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run verifies the session's candidates, rescores and re-sorts them, and
// writes the evidence and final prediction to the session. Missing clues
// degrade verifier coverage rather than failing the stage. The session is
// untouched on error.
func (s *VerificationStage) Run(ctx context.Context, sess *model.Session) error {
	if len(sess.Candidates) == 0 {
		return &ValidationError{Stage: model.PhaseVerifying, Msg: "no candidates to verify"}
	}

	evidenceByCandidate := s.gather(ctx, sess)

	candidates := make([]model.Candidate, len(sess.Candidates))
	copy(candidates, sess.Candidates)

	var allEvidence []model.Evidence
	for i := range candidates {
		evs := evidenceByCandidate[i]
		candidates[i].Score = s.scorer.Rescore(candidates[i].Score, evs)
		for _, ev := range evs {
			if ev.Detail == nil {
				ev.Detail = map[string]any{}
			}
			ev.Detail["candidate"] = candidates[i].Name
			allEvidence = append(allEvidence, ev)
		}
	}
	sortCandidates(candidates)

	if s.judge != nil {
		candidates = s.applyJudge(ctx, sess, candidates, allEvidence)
	}

	prediction := buildPrediction(candidates, allEvidence)

	sess.Candidates = candidates
	sess.Evidence = allEvidence
	sess.Prediction = &prediction

	zap.L().Info("verification complete",
		zap.String("session", sess.ID),
		zap.Int("evidence_items", len(allEvidence)),
		zap.Float64("confidence", prediction.Confidence),
		zap.Float64("lat", prediction.Lat),
		zap.Float64("lon", prediction.Lon),
	)
	return nil
}

// gather runs every enabled verifier against every candidate. Candidates
// are verified concurrently; a verifier failure yields zero evidence for
// that pair and never aborts the others.
func (s *VerificationStage) gather(ctx context.Context, sess *model.Session) map[int][]model.Evidence {
	var mu sync.Mutex
	out := make(map[int][]model.Evidence, len(sess.Candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxVerifyConcurrency)

	for i, cand := range sess.Candidates {
		g.Go(func() error {
			var evs []model.Evidence
			for _, v := range s.verifiers {
				finding, err := v.Verify(gctx, cand, sess.Clues)
				if err != nil {
					failure := &EvidenceGatheringFailure{
						Verifier:  v.Name(),
						Candidate: cand.Name,
						Err:       err,
					}
					zap.L().Warn("verifier failed, recording zero evidence",
						zap.String("session", sess.ID),
						zap.Error(failure),
					)
					continue
				}
				evs = append(evs, finding.Evidence...)
			}

			mu.Lock()
			out[i] = evs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// applyJudge asks the LLM judge to review the top candidates. A judge
// failure of any kind falls back to the score ranking.
func (s *VerificationStage) applyJudge(ctx context.Context, sess *model.Session, candidates []model.Candidate, evidence []model.Evidence) []model.Candidate {
	topN := min(s.judgeTopN, len(candidates))

	prompt := fmt.Sprintf(judgePromptTemplate, renderCandidatesForJudge(candidates[:topN], evidence))

	var verdict judgePayload
	if err := s.judge.GenerateStructured(ctx, prompt, &verdict); err != nil {
		zap.L().Warn("judge call failed, keeping score ranking",
			zap.String("session", sess.ID),
			zap.Error(err),
		)
		return candidates
	}
	if verdict.BestIndex < 0 || verdict.BestIndex >= topN {
		zap.L().Warn("judge returned out-of-range index, keeping score ranking",
			zap.String("session", sess.ID),
			zap.Int("best_index", verdict.BestIndex),
		)
		return candidates
	}
	if verdict.BestIndex == 0 {
		return candidates
	}

	zap.L().Info("judge overrode ranking",
		zap.String("session", sess.ID),
		zap.String("winner", candidates[verdict.BestIndex].Name),
		zap.String("reason", verdict.Reason),
	)

	reordered := make([]model.Candidate, 0, len(candidates))
	reordered = append(reordered, candidates[verdict.BestIndex])
	for i, cand := range candidates {
		if i != verdict.BestIndex {
			reordered = append(reordered, cand)
		}
	}
	return reordered
}

func renderCandidatesForJudge(candidates []model.Candidate, evidence []model.Evidence) string {
	var sb strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&sb, "%d. %s (%.4f, %.4f) score %.2f\n", i, cand.Name, cand.Lat, cand.Lon, cand.Score)
		for _, ev := range evidence {
			if ev.Detail["candidate"] != cand.Name {
				continue
			}
			fmt.Fprintf(&sb, "   - [%s] %s: %s (confidence %.2f)\n", ev.Result, ev.Kind, ev.Value, ev.Confidence)
		}
	}
	return sb.String()
}

// buildPrediction turns the top candidate into the final prediction. The
// rationale draws on the strongest pass evidence across all candidates,
// the top candidate's own first; the excluded list names the runners-up.
func buildPrediction(candidates []model.Candidate, evidence []model.Evidence) model.Prediction {
	top := candidates[0]

	pred := model.Prediction{
		Lat:        top.Lat,
		Lon:        top.Lon,
		Confidence: top.Score,
	}

	var supporting []string
	appendPass := func(wantTop bool) {
		for _, ev := range evidence {
			if len(supporting) >= maxRationaleItems {
				return
			}
			if ev.Result != model.EvidencePass {
				continue
			}
			isTop := ev.Detail["candidate"] == top.Name
			if isTop != wantTop {
				continue
			}
			supporting = append(supporting, fmt.Sprintf("%s: %s", ev.Kind, ev.Value))
		}
	}
	appendPass(true)
	appendPass(false)
	pred.Supporting = supporting

	rationale := fmt.Sprintf("%s (score %.2f, via %s retrieval)", top.Name, top.Score, top.Method)
	if len(supporting) > 0 {
		rationale += "; supported by " + strings.Join(supporting, "; ")
	}
	pred.Rationale = rationale

	for i, cand := range candidates[1:] {
		if i >= 4 {
			break
		}
		pred.Excluded = append(pred.Excluded, fmt.Sprintf("%s (score %.2f)", cand.Name, cand.Score))
	}

	return pred
}
