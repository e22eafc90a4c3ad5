package verify

import (
	"context"
	"regexp"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/geomind-labs/geomind/internal/model"
)

// matchThreshold is the minimum string similarity for an OCR snippet to
// count as naming the candidate place.
const matchThreshold = 0.6

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]+`)

// OCRPOI matches recognized text against the candidate's place name. Signs,
// shopfronts, and street plates that name the place are strong evidence.
type OCRPOI struct{}

// NewOCRPOI returns the OCR-to-place matcher.
func NewOCRPOI() *OCRPOI { return &OCRPOI{} }

func (*OCRPOI) Name() string { return "ocr_poi" }

func (*OCRPOI) Verify(_ context.Context, cand model.Candidate, clues *model.Clues) (Finding, error) {
	if clues == nil || len(clues.OCR) == 0 {
		return Finding{}, nil
	}

	targets := placeTargets(cand)
	if len(targets) == 0 {
		return Finding{}, nil
	}

	var finding Finding
	var total float64
	for _, snippet := range clues.OCR {
		sim := bestSimilarity(normalizeText(snippet.Text), targets)
		if sim < matchThreshold {
			continue
		}
		finding.Evidence = append(finding.Evidence, model.Evidence{
			Kind:       "ocr_poi",
			Value:      snippet.Text,
			Result:     model.EvidencePass,
			Confidence: sim,
			Detail:     map[string]any{"similarity": sim, "target": cand.Name},
		})
		total += sim
	}

	if len(finding.Evidence) == 0 {
		finding.Evidence = []model.Evidence{{
			Kind:       "ocr_poi",
			Value:      "no recognized text names " + cand.Name,
			Result:     model.EvidenceFail,
			Confidence: 0.2,
		}}
		finding.Confidence = 0.2
		return finding, nil
	}

	finding.Confidence = total / float64(len(finding.Evidence))
	return finding, nil
}

// placeTargets collects the normalized name parts a snippet can match:
// the full candidate name, its comma-separated components, and the source
// hypothesis region.
func placeTargets(cand model.Candidate) []string {
	var targets []string
	add := func(s string) {
		if n := normalizeText(s); n != "" {
			targets = append(targets, n)
		}
	}

	add(cand.Name)
	for _, part := range strings.Split(cand.Name, ",") {
		add(part)
	}
	add(cand.SourceHypothesis)
	for _, part := range strings.Split(cand.SourceHypothesis, ",") {
		add(part)
	}
	return targets
}

// bestSimilarity returns the highest similarity between text and any
// target, comparing both whole strings and individual words.
func bestSimilarity(text string, targets []string) float64 {
	if text == "" {
		return 0
	}

	var best float64
	words := strings.Fields(text)
	for _, target := range targets {
		if sim := levenshtein.Similarity(text, target, nil); sim > best {
			best = sim
		}
		for _, w := range words {
			if len(w) < 3 {
				continue
			}
			if sim := levenshtein.Similarity(w, target, nil); sim > best {
				best = sim
			}
		}
	}
	return best
}

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
