// Package vision defines the vision-language collaborator contract and an
// Anthropic-backed implementation. The model returns raw text; callers own
// the parsing, since model output is never guaranteed to be well formed.
package vision

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/geomind-labs/geomind/internal/resilience"
	"github.com/geomind-labs/geomind/pkg/anthropic"
)

// Model analyzes one image against a prompt and returns the raw response
// text.
type Model interface {
	Analyze(ctx context.Context, image []byte, prompt string) (string, error)
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

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(m *anthropicModel) {
		m.retry = cfg
	}
}

type anthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    []anthropic.SystemBlock
	retry     resilience.RetryConfig
}

// NewAnthropicModel builds a vision model on top of an Anthropic client.
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

func (m *anthropicModel) Analyze(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", eris.New("vision: empty image")
	}

	mediaType := DetectMediaType(image)
	if mediaType == "" {
		return "", eris.New("vision: unsupported image format")
	}

	req := anthropic.MessageRequest{
		Model:     m.model,
		MaxTokens: m.maxTokens,
		System:    m.system,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: prompt,
			Image: &anthropic.ImageInput{
				MediaType: mediaType,
				DataB64:   base64.StdEncoding.EncodeToString(image),
			},
		}},
	}

	cfg := m.retry
	cfg.OnRetry = resilience.RetryLogger("vision", "analyze")

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return m.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", eris.Wrap(err, "vision: analyze")
	}

	resp.Usage.LogCost(m.model, "perception")
	return extractText(resp), nil
}

// DetectMediaType sniffs the image format and returns the media type the
// API accepts, or "" for anything else.
func DetectMediaType(image []byte) string {
	switch ct := http.DetectContentType(image); ct {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return ct
	default:
		return ""
	}
}

// extractText concatenates all text blocks in a response.
func extractText(resp *anthropic.MessageResponse) string {
	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}
