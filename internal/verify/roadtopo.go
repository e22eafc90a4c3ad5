package verify

import (
	"context"
	"strings"

	"github.com/geomind-labs/geomind/internal/model"
)

// leftDriving lists regions where traffic keeps left.
var leftDriving = []string{
	"japan", "united kingdom", "england", "scotland", "wales", "ireland",
	"australia", "new zealand", "india", "south africa", "kenya", "thailand",
	"indonesia", "malaysia", "singapore", "hong kong", "cyprus", "malta",
}

// RoadTopology checks road-related observations (driving side, signage
// conventions, road furniture) against the candidate's region.
type RoadTopology struct{}

// NewRoadTopology returns the road-topology checker.
func NewRoadTopology() *RoadTopology { return &RoadTopology{} }

func (*RoadTopology) Name() string { return "road_topology" }

func (*RoadTopology) Verify(_ context.Context, cand model.Candidate, clues *model.Clues) (Finding, error) {
	if clues == nil || len(clues.Observations) == 0 {
		return Finding{}, nil
	}

	region := strings.ToLower(cand.Name + " " + cand.SourceHypothesis)

	var finding Finding
	for _, obs := range clues.Observations {
		cat := strings.ToLower(obs.Category)
		if !strings.Contains(cat, "road") && !strings.Contains(cat, "driving") && !strings.Contains(cat, "traffic") {
			continue
		}

		val := strings.ToLower(obs.Value)
		switch {
		case strings.Contains(val, "left"):
			finding.Evidence = append(finding.Evidence, drivingSideEvidence(region, obs, true))
		case strings.Contains(val, "right"):
			finding.Evidence = append(finding.Evidence, drivingSideEvidence(region, obs, false))
		case containsToken(region, val):
			// A road observation that names the region directly, e.g.
			// "autobahn-style signage" against a German candidate.
			finding.Evidence = append(finding.Evidence, model.Evidence{
				Kind:       "road_topology",
				Value:      obs.Value,
				Result:     model.EvidencePass,
				Confidence: 0.7,
			})
		}
	}

	if len(finding.Evidence) == 0 {
		return Finding{}, nil
	}

	var total float64
	for _, ev := range finding.Evidence {
		total += ev.Confidence
	}
	finding.Confidence = total / float64(len(finding.Evidence))
	return finding, nil
}

func drivingSideEvidence(region string, obs model.VisualObservation, observedLeft bool) model.Evidence {
	regionLeft := matchesAny(region, leftDriving)

	ev := model.Evidence{
		Kind:   "road_topology",
		Value:  obs.Value,
		Detail: map[string]any{"observed_left": observedLeft, "region_keeps_left": regionLeft},
	}
	if observedLeft == regionLeft {
		ev.Result = model.EvidencePass
		ev.Confidence = 0.75
	} else {
		ev.Result = model.EvidenceFail
		ev.Confidence = 0.25
	}
	return ev
}

// containsToken reports whether any word of val longer than three
// characters appears in the region text.
func containsToken(region, val string) bool {
	for _, w := range strings.Fields(val) {
		if len(w) > 3 && strings.Contains(region, w) {
			return true
		}
	}
	return false
}
