package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomind-labs/geomind/internal/cache"
	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/internal/pipeline"
)

type stubLocator struct {
	calls int
	run   func(ctx context.Context, name string, image []byte) (*model.Session, error)
}

func (s *stubLocator) RunImage(ctx context.Context, name string, image []byte) (*model.Session, error) {
	s.calls++
	return s.run(ctx, name, image)
}

func parisLocator() *stubLocator {
	return &stubLocator{run: func(_ context.Context, name string, _ []byte) (*model.Session, error) {
		sess := model.NewSession(name)
		sess.Phase = model.PhaseDone
		sess.Prediction = &model.Prediction{Lat: 48.8584, Lon: 2.2945, Confidence: 0.94}
		return sess, nil
	}}
}

func locateBody(t *testing.T, image []byte) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"name":      "test.jpg",
		"image_b64": base64.StdEncoding.EncodeToString(image),
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestHealth(t *testing.T) {
	srv := New(parisLocator(), nil, 0)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestLocate_ReturnsPrediction(t *testing.T) {
	srv := New(parisLocator(), nil, 0)
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/v1/locate", locateBody(t, []byte{0xFF, 0xD8}))
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionID  string            `json:"session_id"`
		Cached     bool              `json:"cached"`
		Prediction *model.Prediction `json:"prediction"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Prediction)
	assert.InDelta(t, 48.8584, resp.Prediction.Lat, 1e-6)
}

func TestLocate_MissingImageIsBadRequest(t *testing.T) {
	srv := New(parisLocator(), nil, 0)
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/v1/locate", bytes.NewBufferString(`{"name":"x"}`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "image_b64 is required")
}

func TestLocate_InvalidBase64IsBadRequest(t *testing.T) {
	srv := New(parisLocator(), nil, 0)
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/v1/locate",
		bytes.NewBufferString(`{"image_b64":"not base64!!!"}`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocate_PipelineFailureIsBadGateway(t *testing.T) {
	locator := &stubLocator{run: func(context.Context, string, []byte) (*model.Session, error) {
		return nil, errors.New("geoclip: connection refused")
	}}
	srv := New(locator, nil, 0)
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/v1/locate", locateBody(t, []byte{0xFF}))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLocate_ValidationFailureIsUnprocessable(t *testing.T) {
	locator := &stubLocator{run: func(context.Context, string, []byte) (*model.Session, error) {
		return nil, &pipeline.ValidationError{Stage: model.PhasePerceiving, Msg: "no image data"}
	}}
	srv := New(locator, nil, 0)
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/v1/locate", locateBody(t, []byte{0xFF}))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLocate_SecondRequestHitsCache(t *testing.T) {
	predCache, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { predCache.Close() })
	require.NoError(t, predCache.Migrate(context.Background()))

	locator := parisLocator()
	srv := New(locator, predCache, 0)
	router := srv.Router()
	image := []byte{0xFF, 0xD8, 0x01}

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/v1/locate", locateBody(t, image)))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/v1/locate", locateBody(t, image)))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1, locator.calls)
	assert.Contains(t, second.Body.String(), `"cached":true`)
}
