package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/exif"
	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/pkg/vision"
)

// PerceptionStage turns a raw image into structured clues via the vision
// model, merging in whatever EXIF offers. With fallback enabled a vision
// failure degrades to EXIF-only clues instead of failing the run.
type PerceptionStage struct {
	vision      vision.Model
	exif        exif.Reader
	exifEnabled bool
	fallback    bool
}

// PerceptionOption configures the stage.
type PerceptionOption func(*PerceptionStage)

// WithEXIFFallback controls whether a vision failure degrades to EXIF-only
// clues. Enabled by default.
func WithEXIFFallback(enabled bool) PerceptionOption {
	return func(s *PerceptionStage) {
		s.fallback = enabled
	}
}

// WithEXIFEnabled controls whether EXIF is read at all. Enabled by default.
func WithEXIFEnabled(enabled bool) PerceptionOption {
	return func(s *PerceptionStage) {
		s.exifEnabled = enabled
	}
}

// NewPerceptionStage builds the perception stage.
func NewPerceptionStage(v vision.Model, x exif.Reader, opts ...PerceptionOption) *PerceptionStage {
	s := &PerceptionStage{
		vision:      v,
		exif:        x,
		exifEnabled: true,
		fallback:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run extracts clues from the image and writes them to the session. The
// session is untouched on error.
func (s *PerceptionStage) Run(ctx context.Context, sess *model.Session, image []byte) error {
	if len(image) == 0 {
		return &ValidationError{Stage: model.PhasePerceiving, Msg: "no image data"}
	}

	// EXIF is best effort and never fatal.
	var meta model.ImageMetadata
	if s.exifEnabled {
		meta = s.exif.Read(image)
	}

	raw, err := s.vision.Analyze(ctx, image, perceptionPrompt)
	if err != nil {
		if !s.fallback {
			return &ServiceError{Stage: model.PhasePerceiving, Err: err}
		}
		zap.L().Warn("vision model failed, degrading to EXIF-only clues",
			zap.String("session", sess.ID),
			zap.Error(err),
		)
		sess.Clues = &model.Clues{
			OCR:          []model.OCRSnippet{},
			Observations: []model.VisualObservation{},
			Metadata:     meta,
		}
		return nil
	}

	clues, perr := parseClues(raw)
	if perr != nil {
		// Unparseable output gets a safe default: empty but valid clues.
		zap.L().Warn("vision output unparseable, synthesizing empty clues",
			zap.String("session", sess.ID),
			zap.Error(&ParseError{Stage: model.PhasePerceiving, Err: perr}),
		)
		clues = &model.Clues{
			OCR:          []model.OCRSnippet{},
			Observations: []model.VisualObservation{},
		}
	}

	mergeEXIF(&clues.Metadata, meta)
	sess.Clues = clues

	zap.L().Info("perception complete",
		zap.String("session", sess.ID),
		zap.Int("ocr_snippets", len(clues.OCR)),
		zap.Int("observations", len(clues.Observations)),
		zap.Bool("gps", clues.Metadata.GPS != nil),
	)
	return nil
}

// mergeEXIF fills metadata fields from EXIF. EXIF wins for GPS, timestamp,
// and camera since it is measured rather than inferred; the scene type
// comes from the vision model.
func mergeEXIF(dst *model.ImageMetadata, exifMeta model.ImageMetadata) {
	if exifMeta.GPS != nil {
		dst.GPS = exifMeta.GPS
	}
	if exifMeta.Timestamp != nil {
		dst.Timestamp = exifMeta.Timestamp
	}
	if exifMeta.Camera != "" {
		dst.Camera = exifMeta.Camera
	}
}
