package imageutil

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func TestResizeImageWithinBoundsUnchanged(t *testing.T) {
	original := encodePNG(t, 800, 600)

	resized, err := ResizeImage(original, nil)

	require.NoError(t, err)
	assert.Equal(t, original, resized)
}

func TestResizeImageDownscalesLargeImage(t *testing.T) {
	original := encodePNG(t, 4000, 2000)

	resized, err := ResizeImage(original, &ResizeConfig{MaxDimension: 1000, Quality: 85})

	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(resized))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 1000, img.Bounds().Dx())
	assert.Equal(t, 500, img.Bounds().Dy())
}

func TestResizeImageInvalidData(t *testing.T) {
	_, err := ResizeImage([]byte("not an image"), nil)
	assert.Error(t, err)
}
