package model

import "time"

// OCRSnippet is one text fragment recognized in the image.
type OCRSnippet struct {
	Text       string     `json:"text"`
	BBox       [4]float64 `json:"bbox,omitempty"` // x, y, width, height in pixel space
	Confidence float64    `json:"confidence"`
	Language   string     `json:"language,omitempty"`
}

// VisualObservation is one detected visual trait (architecture style,
// vegetation, signage shape, driving side, and so on).
type VisualObservation struct {
	Category   string  `json:"category"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// GPSCoord is a decimal-degree coordinate pair from EXIF.
type GPSCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ImageMetadata holds EXIF-derived and scene-level facts. All fields are
// optional; an empty value means the source image carried no such data.
type ImageMetadata struct {
	GPS       *GPSCoord  `json:"gps,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Camera    string     `json:"camera,omitempty"`
	SceneType string     `json:"scene_type,omitempty"`
}

// Clues is everything perception extracted from one image. It may be empty
// but is never nil on a session once perception has run.
type Clues struct {
	OCR          []OCRSnippet        `json:"ocr"`
	Observations []VisualObservation `json:"observations"`
	Metadata     ImageMetadata       `json:"metadata"`
}

// HasSignal reports whether the clues carry anything a hypothesis could be
// built from: at least one OCR snippet, one observation, or a GPS fix.
func (c *Clues) HasSignal() bool {
	if c == nil {
		return false
	}
	return len(c.OCR) > 0 || len(c.Observations) > 0 || c.Metadata.GPS != nil
}
