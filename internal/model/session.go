package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase tags where a session currently is in the pipeline.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhasePerceiving    Phase = "perceiving"
	PhaseHypothesizing Phase = "hypothesizing"
	PhaseRetrieving    Phase = "retrieving"
	PhaseVerifying     Phase = "verifying"
	PhaseLooping       Phase = "looping"
	PhaseDone          Phase = "done"
)

// Session is the mutable working state for one geolocation request. It is
// owned by the orchestrator; stages read prior-stage output and write only
// their own field. Partial progress stays inspectable after a failure.
type Session struct {
	ID         string       `json:"id"`
	ImagePath  string       `json:"image_path"`
	Phase      Phase        `json:"phase"`
	Iteration  int          `json:"iteration"`
	Clues      *Clues       `json:"clues,omitempty"`
	Hypotheses []Hypothesis `json:"hypotheses,omitempty"`
	Candidates []Candidate  `json:"candidates,omitempty"`
	Evidence   []Evidence   `json:"evidence,omitempty"`
	Prediction *Prediction  `json:"prediction,omitempty"`
	Err        error        `json:"-"`
	StartedAt  time.Time    `json:"started_at"`
}

// NewSession creates a session in the init phase for the given image.
func NewSession(imagePath string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ImagePath: imagePath,
		Phase:     PhaseInit,
		StartedAt: time.Now(),
	}
}

// Summary renders a one-line diagnostic snapshot of the session.
func (s *Session) Summary() string {
	ocr, obs := 0, 0
	if s.Clues != nil {
		ocr = len(s.Clues.OCR)
		obs = len(s.Clues.Observations)
	}
	status := "in_progress"
	if s.Err != nil {
		status = "failed"
	} else if s.Prediction != nil {
		status = "predicted"
	}
	return fmt.Sprintf(
		"session %s phase=%s iter=%d ocr=%d observations=%d hypotheses=%d candidates=%d evidence=%d status=%s",
		s.ID, s.Phase, s.Iteration, ocr, obs,
		len(s.Hypotheses), len(s.Candidates), len(s.Evidence), status,
	)
}
