package model

// Hypothesis is a ranked guess about the broad geographic region an image
// depicts, with the reasoning that supports or conflicts with it.
type Hypothesis struct {
	Region      string   `json:"region"`
	Rationale   []string `json:"rationale,omitempty"`
	Supporting  []string `json:"supporting,omitempty"`
	Conflicting []string `json:"conflicting,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// RetrievalMethod tags how a candidate coordinate was produced.
type RetrievalMethod string

const (
	RetrievalDirect     RetrievalMethod = "direct"
	RetrievalImageOnly  RetrievalMethod = "image_only"
	RetrievalTextOnly   RetrievalMethod = "text_only"
	RetrievalMultiScale RetrievalMethod = "multi_scale"
	RetrievalEnsemble   RetrievalMethod = "ensemble"
)

// Candidate is a concrete coordinate guess derived from a hypothesis.
// Score starts as the source hypothesis confidence and is rewritten in
// place by verification.
type Candidate struct {
	Lat              float64         `json:"lat"`
	Lon              float64         `json:"lon"`
	Name             string          `json:"name"`
	SourceHypothesis string          `json:"source_hypothesis"`
	Score            float64         `json:"score"`
	Method           RetrievalMethod `json:"retrieval_method"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}
