package model

// EvidenceResult is the outcome of one verifier check.
type EvidenceResult string

const (
	EvidencePass      EvidenceResult = "pass"
	EvidenceFail      EvidenceResult = "fail"
	EvidenceUncertain EvidenceResult = "uncertain"
)

// Evidence is one verifier's finding about one candidate. Immutable once
// created.
type Evidence struct {
	Kind       string         `json:"kind"`
	Value      string         `json:"value"`
	Result     EvidenceResult `json:"result"`
	Confidence float64        `json:"confidence"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Prediction is the session's final answer.
type Prediction struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Supporting []string `json:"supporting,omitempty"`
	Excluded   []string `json:"excluded,omitempty"`
}
