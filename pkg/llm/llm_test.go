package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomind-labs/geomind/pkg/anthropic"
)

type stubClient struct {
	text string
	err  error
}

func (s *stubClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.text}},
	}, nil
}

func TestGenerate(t *testing.T) {
	m := NewAnthropicModel(&stubClient{text: "Paris, France"}, "claude-sonnet-4-5-20250929")

	out, err := m.Generate(context.Background(), "where?")
	require.NoError(t, err)
	assert.Equal(t, "Paris, France", out)
}

func TestGenerate_ServiceFailure(t *testing.T) {
	m := NewAnthropicModel(&stubClient{err: errors.New("boom")}, "claude-sonnet-4-5-20250929")

	_, err := m.Generate(context.Background(), "where?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm: generate")
}

func TestGenerateStructured(t *testing.T) {
	m := NewAnthropicModel(
		&stubClient{text: "Sure, here is the JSON:\n```json\n{\"region\": \"Lisbon, Portugal\", \"confidence\": 0.8}\n```"},
		"claude-sonnet-4-5-20250929",
	)

	var got struct {
		Region     string  `json:"region"`
		Confidence float64 `json:"confidence"`
	}
	err := m.GenerateStructured(context.Background(), "hypothesize", &got)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon, Portugal", got.Region)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
}

func TestGenerateStructured_Malformed(t *testing.T) {
	m := NewAnthropicModel(&stubClient{text: "I cannot answer that."}, "claude-sonnet-4-5-20250929")

	var got map[string]any
	err := m.GenerateStructured(context.Background(), "hypothesize", &got)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no language", "```\n[1, 2]\n```", `[1, 2]`},
		{"prose wrapped", `Here you go: {"a": 1}. Anything else?`, `{"a": 1}`},
		{"array before object", `[{"a": 1}]`, `[{"a": 1}]`},
		{"no payload", "sorry, no data", ""},
		{"unbalanced", "{oops", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestDecode_TrailingProse(t *testing.T) {
	var got struct {
		Lat float64 `json:"lat"`
	}
	err := Decode(`The answer is {"lat": 48.858} based on the tower.`, &got)
	require.NoError(t, err)
	assert.InDelta(t, 48.858, got.Lat, 1e-9)
}
