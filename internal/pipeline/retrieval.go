package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geomind-labs/geomind/internal/geoutil"
	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/pkg/geoclip"
)

// Strategy selects how retrieval turns hypotheses into candidates.
type Strategy string

const (
	// StrategyDirect queries with image and text together.
	StrategyDirect Strategy = "direct"
	// StrategyFallback tries image and text, degrading to text only when
	// the combined call fails.
	StrategyFallback Strategy = "fallback"
	// StrategyMultiScale queries at city, region, and country granularity
	// and deduplicates by grid cell.
	StrategyMultiScale Strategy = "multi_scale"
	// StrategyEnsemble merges the fallback and multi-scale results,
	// summing scores per grid cell.
	StrategyEnsemble Strategy = "ensemble"
)

// multiScaleTags are appended to the query at each granularity level.
var multiScaleTags = []string{"city", "region", "country"}

// maxRetrievalConcurrency bounds the per-hypothesis fan-out.
const maxRetrievalConcurrency = 4

// maxSupportingClues caps how many supporting clues join the query string.
const maxSupportingClues = 3

// RetrievalStage turns hypotheses into coordinate candidates via the
// retrieval service. Each candidate is scored with its source hypothesis
// confidence: retrieval ranks where, hypotheses already ranked how sure.
type RetrievalStage struct {
	client   geoclip.Client
	strategy Strategy
	topK     int
}

// RetrievalOption configures the stage.
type RetrievalOption func(*RetrievalStage)

// WithStrategy selects the retrieval strategy. Default fallback.
func WithStrategy(s Strategy) RetrievalOption {
	return func(r *RetrievalStage) {
		r.strategy = s
	}
}

// WithTopK caps the candidate list. Default 10.
func WithTopK(k int) RetrievalOption {
	return func(r *RetrievalStage) {
		if k > 0 {
			r.topK = k
		}
	}
}

// NewRetrievalStage builds the retrieval stage.
func NewRetrievalStage(client geoclip.Client, opts ...RetrievalOption) *RetrievalStage {
	s := &RetrievalStage{
		client:   client,
		strategy: StrategyFallback,
		topK:     10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run resolves the session's hypotheses into candidates and writes them to
// the session sorted by score. A per-hypothesis failure is logged and
// skipped; the stage fails only when nothing survives. The session is
// untouched on error.
func (s *RetrievalStage) Run(ctx context.Context, sess *model.Session, image []byte) error {
	if len(sess.Hypotheses) == 0 {
		return &ValidationError{Stage: model.PhaseRetrieving, Msg: "no hypotheses to retrieve against"}
	}

	imageB64 := ""
	if len(image) > 0 {
		imageB64 = base64.StdEncoding.EncodeToString(image)
	}

	var candidates []model.Candidate
	var failures []error
	switch s.strategy {
	case StrategyMultiScale:
		candidates, failures = s.runMultiScale(ctx, sess, imageB64)
	case StrategyEnsemble:
		candidates, failures = s.runEnsemble(ctx, sess, imageB64)
	case StrategyDirect:
		candidates, failures = s.runFlat(ctx, sess, imageB64, false)
	default:
		candidates, failures = s.runFlat(ctx, sess, imageB64, true)
	}

	candidates = filterValid(candidates)
	if len(candidates) == 0 {
		if len(failures) > 0 {
			return &ServiceError{Stage: model.PhaseRetrieving, Err: joinErrors(failures)}
		}
		return &NoSurvivorsError{Stage: model.PhaseRetrieving, Msg: "no hypothesis resolved to a coordinate"}
	}

	sortCandidates(candidates)
	if len(candidates) > s.topK {
		candidates = candidates[:s.topK]
	}

	sess.Candidates = candidates
	zap.L().Info("retrieval complete",
		zap.String("session", sess.ID),
		zap.String("strategy", string(s.strategy)),
		zap.Int("candidates", len(candidates)),
		zap.Int("failed_hypotheses", len(failures)),
	)
	return nil
}

// runFlat issues one retrieval per hypothesis. With degrade set, a failed
// image+text call is retried as text only before the hypothesis is skipped.
func (s *RetrievalStage) runFlat(ctx context.Context, sess *model.Session, imageB64 string, degrade bool) ([]model.Candidate, []error) {
	var mu sync.Mutex
	var candidates []model.Candidate
	var failures []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxRetrievalConcurrency)

	for _, hyp := range sess.Hypotheses {
		g.Go(func() error {
			cand, err := s.resolveOne(gctx, hyp, imageB64, degrade)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("hypothesis retrieval failed, skipping",
					zap.String("session", sess.ID),
					zap.String("region", hyp.Region),
					zap.Error(err),
				)
				failures = append(failures, err)
				return nil
			}
			candidates = append(candidates, cand)
			return nil
		})
	}
	_ = g.Wait()

	return candidates, failures
}

// resolveOne maps a hypothesis to its single best coordinate.
func (s *RetrievalStage) resolveOne(ctx context.Context, hyp model.Hypothesis, imageB64 string, degrade bool) (model.Candidate, error) {
	query := buildQuery(hyp)

	req := geoclip.LocateRequest{ImageB64: imageB64, Text: query, TopK: 1}
	method := model.RetrievalDirect
	if imageB64 == "" {
		method = model.RetrievalTextOnly
	}

	points, err := s.client.Locate(ctx, req)
	if err != nil && degrade && imageB64 != "" {
		zap.L().Debug("image+text retrieval failed, degrading to text only",
			zap.String("region", hyp.Region), zap.Error(err))
		points, err = s.client.Locate(ctx, geoclip.LocateRequest{Text: query, TopK: 1})
		method = model.RetrievalTextOnly
	}
	if err != nil {
		return model.Candidate{}, err
	}
	if len(points) == 0 {
		return model.Candidate{}, &NoSurvivorsError{Stage: model.PhaseRetrieving, Msg: "empty result for " + hyp.Region}
	}

	return model.Candidate{
		Lat:              points[0].Lat,
		Lon:              points[0].Lon,
		Name:             hyp.Region,
		SourceHypothesis: hyp.Region,
		Score:            hyp.Confidence,
		Method:           method,
		Metadata:         map[string]any{"query": query, "service_score": points[0].Score},
	}, nil
}

// runMultiScale retrieves each hypothesis at city, region, and country
// granularity, then deduplicates by ~1 km grid cell keeping the highest
// score per cell.
func (s *RetrievalStage) runMultiScale(ctx context.Context, sess *model.Session, imageB64 string) ([]model.Candidate, []error) {
	var mu sync.Mutex
	var raw []model.Candidate
	var failures []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxRetrievalConcurrency)

	for _, hyp := range sess.Hypotheses {
		for _, scale := range multiScaleTags {
			g.Go(func() error {
				query := buildQuery(hyp) + " at " + scale + " scale"
				points, err := s.client.Locate(gctx, geoclip.LocateRequest{
					ImageB64: imageB64,
					Text:     query,
					TopK:     1,
				})

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					zap.L().Warn("multi-scale retrieval failed, skipping",
						zap.String("region", hyp.Region),
						zap.String("scale", scale),
						zap.Error(err),
					)
					failures = append(failures, err)
					return nil
				}
				if len(points) == 0 {
					return nil
				}
				raw = append(raw, model.Candidate{
					Lat:              points[0].Lat,
					Lon:              points[0].Lon,
					Name:             hyp.Region,
					SourceHypothesis: hyp.Region,
					Score:            hyp.Confidence,
					Method:           model.RetrievalMultiScale,
					Metadata:         map[string]any{"scale": scale, "service_score": points[0].Score},
				})
				return nil
			})
		}
	}
	_ = g.Wait()

	return dedupeByCell(raw), failures
}

// runEnsemble merges the fallback and multi-scale strategies, summing
// scores per grid cell so places found by both rank higher.
func (s *RetrievalStage) runEnsemble(ctx context.Context, sess *model.Session, imageB64 string) ([]model.Candidate, []error) {
	flat, flatFailures := s.runFlat(ctx, sess, imageB64, true)
	scaled, scaledFailures := s.runMultiScale(ctx, sess, imageB64)

	merged := map[string]model.Candidate{}
	for _, cand := range append(filterValid(flat), filterValid(scaled)...) {
		key := geoutil.CellKey(cand.Lat, cand.Lon)
		if existing, ok := merged[key]; ok {
			existing.Score = geoutil.Clamp01(existing.Score + cand.Score)
			merged[key] = existing
			continue
		}
		cand.Method = model.RetrievalEnsemble
		merged[key] = cand
	}

	out := make([]model.Candidate, 0, len(merged))
	for _, cand := range merged {
		out = append(out, cand)
	}
	return out, append(flatFailures, scaledFailures...)
}

// buildQuery renders a short retrieval query: the region label plus up to
// three supporting clues.
func buildQuery(hyp model.Hypothesis) string {
	parts := []string{hyp.Region}
	for i, clue := range hyp.Supporting {
		if i >= maxSupportingClues {
			break
		}
		if c := strings.TrimSpace(clue); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ", ")
}

// dedupeByCell keeps the highest-scoring candidate per ~1 km grid cell.
func dedupeByCell(cands []model.Candidate) []model.Candidate {
	best := map[string]model.Candidate{}
	for _, cand := range cands {
		key := geoutil.CellKey(cand.Lat, cand.Lon)
		if existing, ok := best[key]; !ok || cand.Score > existing.Score {
			best[key] = cand
		}
	}
	out := make([]model.Candidate, 0, len(best))
	for _, cand := range best {
		out = append(out, cand)
	}
	return out
}

func filterValid(cands []model.Candidate) []model.Candidate {
	out := cands[:0]
	for _, cand := range cands {
		if geoutil.ValidLatLon(cand.Lat, cand.Lon) {
			out = append(out, cand)
		}
	}
	return out
}

func sortCandidates(cands []model.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
