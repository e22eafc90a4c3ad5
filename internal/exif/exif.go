// Package exif reads location-relevant metadata out of image files. It is
// best effort throughout: any failure yields empty metadata, never an
// error the pipeline has to handle.
package exif

import (
	"bytes"

	goexif "github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/model"
)

// Reader extracts ImageMetadata from raw image bytes.
type Reader interface {
	Read(image []byte) model.ImageMetadata
}

type reader struct{}

// NewReader returns the default EXIF reader.
func NewReader() Reader {
	return reader{}
}

// Read decodes EXIF tags from the image. Missing or corrupt EXIF data is
// normal (screenshots, stripped uploads) and yields empty metadata.
func (reader) Read(image []byte) model.ImageMetadata {
	var meta model.ImageMetadata

	x, err := goexif.Decode(bytes.NewReader(image))
	if err != nil {
		zap.L().Debug("exif: no decodable metadata", zap.Error(err))
		return meta
	}

	if lat, lon, err := x.LatLong(); err == nil {
		meta.GPS = &model.GPSCoord{Lat: lat, Lon: lon}
	}

	if ts, err := x.DateTime(); err == nil {
		meta.Timestamp = &ts
	}

	if tag, err := x.Get(goexif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.Camera = s
		}
	}

	return meta
}
