package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/internal/verify"
	"github.com/geomind-labs/geomind/pkg/geoclip"
)

// stubVision implements vision.Model with a function field.
type stubVision struct {
	mu      sync.Mutex
	calls   int
	analyze func(ctx context.Context, image []byte, prompt string) (string, error)
}

func (s *stubVision) Analyze(ctx context.Context, image []byte, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.analyze(ctx, image, prompt)
}

// visionReturning always answers with the given raw response.
func visionReturning(raw string) *stubVision {
	return &stubVision{analyze: func(context.Context, []byte, string) (string, error) {
		return raw, nil
	}}
}

// stubLLM implements llm.Model with function fields. Prompts are recorded
// so tests can assert on refinement context.
type stubLLM struct {
	mu         sync.Mutex
	prompts    []string
	generate   func(ctx context.Context, prompt string) (string, error)
	structured func(ctx context.Context, prompt string, out any) error
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	s.record(prompt)
	return s.generate(ctx, prompt)
}

func (s *stubLLM) GenerateStructured(ctx context.Context, prompt string, out any) error {
	s.record(prompt)
	return s.structured(ctx, prompt, out)
}

func (s *stubLLM) record(prompt string) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// llmReturningJSON decodes the given payload into out on every structured
// call.
func llmReturningJSON(payload string) *stubLLM {
	return &stubLLM{structured: func(_ context.Context, _ string, out any) error {
		return json.Unmarshal([]byte(payload), out)
	}}
}

// stubGeoclip implements geoclip.Client with a function field. Requests
// are recorded so tests can assert on query shape.
type stubGeoclip struct {
	mu     sync.Mutex
	calls  []geoclip.LocateRequest
	locate func(ctx context.Context, req geoclip.LocateRequest) ([]geoclip.Point, error)
}

func (s *stubGeoclip) Locate(ctx context.Context, req geoclip.LocateRequest) ([]geoclip.Point, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.locate(ctx, req)
}

func (s *stubGeoclip) requests() []geoclip.LocateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]geoclip.LocateRequest, len(s.calls))
	copy(out, s.calls)
	return out
}

// geoclipReturning answers every query with the given point.
func geoclipReturning(lat, lon, score float64) *stubGeoclip {
	return &stubGeoclip{locate: func(context.Context, geoclip.LocateRequest) ([]geoclip.Point, error) {
		return []geoclip.Point{{Lat: lat, Lon: lon, Score: score}}, nil
	}}
}

// stubEXIF returns fixed metadata.
type stubEXIF struct {
	meta model.ImageMetadata
}

func (s stubEXIF) Read([]byte) model.ImageMetadata { return s.meta }

// stubVerifier implements verify.Verifier with a function field.
type stubVerifier struct {
	name   string
	verify func(ctx context.Context, cand model.Candidate, clues *model.Clues) (verify.Finding, error)
}

func (s stubVerifier) Name() string { return s.name }

func (s stubVerifier) Verify(ctx context.Context, cand model.Candidate, clues *model.Clues) (verify.Finding, error) {
	return s.verify(ctx, cand, clues)
}

// passVerifier emits one pass evidence item at the given confidence for
// every candidate.
func passVerifier(name string, confidence float64) stubVerifier {
	return stubVerifier{
		name: name,
		verify: func(_ context.Context, cand model.Candidate, _ *model.Clues) (verify.Finding, error) {
			return verify.Finding{
				Confidence: confidence,
				Evidence: []model.Evidence{{
					Kind:       name,
					Value:      "corroborates " + cand.Name,
					Result:     model.EvidencePass,
					Confidence: confidence,
				}},
			}, nil
		},
	}
}

// silentVerifier emits no evidence at all.
func silentVerifier(name string) stubVerifier {
	return stubVerifier{
		name: name,
		verify: func(context.Context, model.Candidate, *model.Clues) (verify.Finding, error) {
			return verify.Finding{}, nil
		},
	}
}
