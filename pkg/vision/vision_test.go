package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomind-labs/geomind/pkg/anthropic"
)

// tinyPNG is the 8-byte PNG signature plus padding, enough for content
// sniffing to call it image/png.
var tinyPNG = append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 16)...)

type stubClient struct {
	fn func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (s *stubClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return s.fn(ctx, req)
}

func TestAnalyze_SendsImageBlock(t *testing.T) {
	var captured anthropic.MessageRequest
	client := &stubClient{fn: func(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		captured = req
		return &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: `{"ocr": []}`}},
		}, nil
	}}

	m := NewAnthropicModel(client, "claude-sonnet-4-5-20250929")
	out, err := m.Analyze(context.Background(), tinyPNG, "extract clues")
	require.NoError(t, err)
	assert.Equal(t, `{"ocr": []}`, out)

	require.Len(t, captured.Messages, 1)
	require.NotNil(t, captured.Messages[0].Image)
	assert.Equal(t, "image/png", captured.Messages[0].Image.MediaType)
	assert.Equal(t, "extract clues", captured.Messages[0].Content)
}

func TestAnalyze_EmptyImage(t *testing.T) {
	m := NewAnthropicModel(&stubClient{}, "claude-sonnet-4-5-20250929")
	_, err := m.Analyze(context.Background(), nil, "prompt")
	require.Error(t, err)
}

func TestAnalyze_UnsupportedFormat(t *testing.T) {
	m := NewAnthropicModel(&stubClient{}, "claude-sonnet-4-5-20250929")
	_, err := m.Analyze(context.Background(), []byte("plain text, not an image"), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format")
}

func TestAnalyze_PropagatesServiceFailure(t *testing.T) {
	client := &stubClient{fn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, errors.New("api key invalid")
	}}

	m := NewAnthropicModel(client, "claude-sonnet-4-5-20250929")
	_, err := m.Analyze(context.Background(), tinyPNG, "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision: analyze")
}

func TestDetectMediaType(t *testing.T) {
	assert.Equal(t, "image/png", DetectMediaType(tinyPNG))
	assert.Equal(t, "image/jpeg", DetectMediaType(append([]byte{0xFF, 0xD8, 0xFF}, make([]byte, 8)...)))
	assert.Empty(t, DetectMediaType([]byte("definitely not an image")))
}
