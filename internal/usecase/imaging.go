package usecase

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
)

// normalizeBlueprint decodes a raw drawing and re-renders it onto the
// canonical canvas (1000x1000 RGBA, PNG) so every model sees the same input
// geometry regardless of the upload's resolution or format. Non-raster
// uploads (PDF) are passed through untouched; the endpoint rasterizes those
// itself.
func normalizeBlueprint(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty blueprint", domain.ErrInvalidInput)
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return data, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode blueprint: %v", domain.ErrInvalidInput, err)
	}

	const w, h = int(model.CanvasWidth), int(model.CanvasHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	// Nearest-neighbour scale; boundary geometry does not need resampling
	// quality, only a fixed coordinate space.
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sb.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("encode normalized blueprint: %w", err)
	}
	return out.Bytes(), nil
}
