// Package llm defines the text-reasoning collaborator contract and an
// Anthropic-backed implementation.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/geomind-labs/geomind/internal/resilience"
	"github.com/geomind-labs/geomind/pkg/anthropic"
)

// ErrMalformed reports that the model's output could not be decoded into
// the requested shape.
var ErrMalformed = eris.New("llm: malformed structured output")

// Model generates text, optionally decoded into a typed value.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStructured decodes the response JSON into out. A response
	// that cannot be decoded fails with ErrMalformed in the chain.
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// Option configures the Anthropic-backed model.
type Option func(*anthropicModel)

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int64) Option {
	return func(m *anthropicModel) {
		m.maxTokens = n
	}
}

// WithSystemPrompt sets a cached system prompt sent on every call.
func WithSystemPrompt(text string) Option {
	return func(m *anthropicModel) {
		m.system = anthropic.BuildCachedSystemBlocks(text)
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(m *anthropicModel) {
		m.temperature = &t
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(m *anthropicModel) {
		m.retry = cfg
	}
}

type anthropicModel struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
	system      []anthropic.SystemBlock
	retry       resilience.RetryConfig
}

// NewAnthropicModel builds a text model on top of an Anthropic client.
func NewAnthropicModel(client anthropic.Client, model string, opts ...Option) Model {
	m := &anthropicModel{
		client:    client,
		model:     model,
		maxTokens: 4096,
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *anthropicModel) Generate(ctx context.Context, prompt string) (string, error) {
	req := anthropic.MessageRequest{
		Model:       m.model,
		MaxTokens:   m.maxTokens,
		System:      m.system,
		Temperature: m.temperature,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	}

	cfg := m.retry
	cfg.OnRetry = resilience.RetryLogger("llm", "generate")

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return m.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: generate")
	}

	resp.Usage.LogCost(m.model, "reasoning")
	return extractText(resp), nil
}

func (m *anthropicModel) GenerateStructured(ctx context.Context, prompt string, out any) error {
	raw, err := m.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	return Decode(raw, out)
}

// Decode parses the JSON embedded in a model response into out. Prose
// around the payload and markdown fences are tolerated; anything that
// still fails to decode reports ErrMalformed.
func Decode(raw string, out any) error {
	payload := ExtractJSON(raw)
	if payload == "" {
		return eris.Wrap(ErrMalformed, "no JSON payload found")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return eris.Wrap(ErrMalformed, err.Error())
	}
	return nil
}

// ExtractJSON pulls the first JSON object or array out of a model
// response, stripping markdown fences and surrounding prose. Returns ""
// when no candidate payload exists.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start, closing := objStart, byte('}')
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, closing = arrStart, ']'
	}
	if start < 0 {
		return ""
	}

	end := strings.LastIndexByte(s, closing)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// extractText concatenates all text blocks in a response.
func extractText(resp *anthropic.MessageResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
