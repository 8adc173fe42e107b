package covers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Compress scales an image down to maxWidth and re-encodes it as JPEG at the
// given quality. Images that already fit are returned unchanged with
// resized=false.
func Compress(data []byte, maxWidth, quality int) (out []byte, resized bool, err error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return data, false, nil
	}

	height := bounds.Dy() * maxWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, false, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), true, nil
}
