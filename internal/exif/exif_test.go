package exif

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadGarbageYieldsEmptyMetadata(t *testing.T) {
	r := NewReader()

	meta := r.Read([]byte("not an image at all"))
	assert.Nil(t, meta.GPS)
	assert.Nil(t, meta.Timestamp)
	assert.Empty(t, meta.Camera)
}

func TestReadEmptyInput(t *testing.T) {
	r := NewReader()

	meta := r.Read(nil)
	assert.Nil(t, meta.GPS)
}
