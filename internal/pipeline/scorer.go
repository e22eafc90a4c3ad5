package pipeline

import (
	"github.com/geomind-labs/geomind/internal/geoutil"
	"github.com/geomind-labs/geomind/internal/model"
)

// EvidenceScorer blends a candidate's prior score with the mean confidence
// of the evidence gathered for it. A candidate with no evidence keeps its
// score unchanged.
type EvidenceScorer struct {
	PriorWeight    float64
	EvidenceWeight float64
}

// DefaultScorer weights the prior 0.6 and the evidence 0.4.
func DefaultScorer() EvidenceScorer {
	return EvidenceScorer{PriorWeight: 0.6, EvidenceWeight: 0.4}
}

// NewScorer builds a scorer with the given weights, substituting the
// defaults when either weight is unusable.
func NewScorer(priorWeight, evidenceWeight float64) EvidenceScorer {
	if priorWeight <= 0 || evidenceWeight <= 0 {
		return DefaultScorer()
	}
	return EvidenceScorer{PriorWeight: priorWeight, EvidenceWeight: evidenceWeight}
}

// Rescore returns the blended score, clamped to [0, 1].
func (s EvidenceScorer) Rescore(old float64, evidence []model.Evidence) float64 {
	if len(evidence) == 0 {
		return old
	}

	var total float64
	for _, ev := range evidence {
		total += ev.Confidence
	}
	mean := total / float64(len(evidence))

	return geoutil.Clamp01(old*s.PriorWeight + mean*s.EvidenceWeight)
}
