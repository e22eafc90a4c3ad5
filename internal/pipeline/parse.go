package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/geomind-labs/geomind/internal/geoutil"
	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/pkg/llm"
)

// cluesPayload is the wire shape the vision model is asked to return.
type cluesPayload struct {
	OCR []struct {
		Text       string    `json:"text"`
		BBox       []float64 `json:"bbox"`
		Confidence float64   `json:"confidence"`
		Language   string    `json:"language"`
	} `json:"ocr"`
	Observations []struct {
		Category   string  `json:"category"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"observations"`
	SceneType string `json:"scene_type"`
}

// parseClues decodes the vision model's response into Clues. Prose and
// markdown around the payload are tolerated; a response with no decodable
// payload is an error the caller turns into empty clues.
func parseClues(raw string) (*model.Clues, error) {
	var payload cluesPayload
	if err := llm.Decode(raw, &payload); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse clues")
	}

	clues := &model.Clues{
		OCR:          make([]model.OCRSnippet, 0, len(payload.OCR)),
		Observations: make([]model.VisualObservation, 0, len(payload.Observations)),
		Metadata:     model.ImageMetadata{SceneType: payload.SceneType},
	}

	for _, o := range payload.OCR {
		if strings.TrimSpace(o.Text) == "" {
			continue
		}
		snippet := model.OCRSnippet{
			Text:       strings.TrimSpace(o.Text),
			Confidence: geoutil.Clamp01(o.Confidence),
			Language:   o.Language,
		}
		if len(o.BBox) == 4 {
			copy(snippet.BBox[:], o.BBox)
		}
		clues.OCR = append(clues.OCR, snippet)
	}

	for _, v := range payload.Observations {
		if strings.TrimSpace(v.Value) == "" {
			continue
		}
		clues.Observations = append(clues.Observations, model.VisualObservation{
			Category:   strings.TrimSpace(v.Category),
			Value:      strings.TrimSpace(v.Value),
			Confidence: geoutil.Clamp01(v.Confidence),
		})
	}

	return clues, nil
}

// hypothesisPayload is the wire shape the text model returns hypotheses in.
type hypothesisPayload struct {
	Region      string   `json:"region"`
	Rationale   []string `json:"rationale"`
	Supporting  []string `json:"supporting"`
	Conflicting []string `json:"conflicting"`
	Confidence  float64  `json:"confidence"`
}

// validateHypotheses converts decoded payloads into Hypotheses, dropping
// anything without a region label and clamping confidences.
func validateHypotheses(payloads []hypothesisPayload) []model.Hypothesis {
	out := make([]model.Hypothesis, 0, len(payloads))
	for _, p := range payloads {
		region := strings.TrimSpace(p.Region)
		if region == "" {
			continue
		}
		out = append(out, model.Hypothesis{
			Region:      region,
			Rationale:   p.Rationale,
			Supporting:  p.Supporting,
			Conflicting: p.Conflicting,
			Confidence:  geoutil.Clamp01(p.Confidence),
		})
	}
	return out
}

// judgePayload is the wire shape of the verification judge's verdict.
type judgePayload struct {
	BestIndex int    `json:"best_index"`
	Reason    string `json:"reason"`
}
