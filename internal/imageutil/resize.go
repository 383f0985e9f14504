package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// DefaultMaxDimension bounds the longest edge of images sent to the
// extraction API; invoice text stays legible well below scan resolution
const DefaultMaxDimension = 1536

// ResizeConfig holds configuration for image resizing
type ResizeConfig struct {
	MaxDimension int // Maximum width or height
	Quality      int // JPEG quality 1-100
}

// DefaultConfig returns default resize configuration
func DefaultConfig() *ResizeConfig {
	return &ResizeConfig{
		MaxDimension: DefaultMaxDimension,
		Quality:      85,
	}
}

// ResizeImage downscales an image that exceeds the max dimension while
// keeping its aspect ratio and encoding. Images already within bounds are
// returned unchanged.
func ResizeImage(imageData []byte, config *ResizeConfig) ([]byte, error) {
	if config == nil {
		config = DefaultConfig()
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= config.MaxDimension && height <= config.MaxDimension {
		return imageData, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = config.MaxDimension
		newHeight = int(float64(height) * float64(config.MaxDimension) / float64(width))
	} else {
		newHeight = config.MaxDimension
		newWidth = int(float64(width) * float64(config.MaxDimension) / float64(height))
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: config.Quality})
	default:
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
