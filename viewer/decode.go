package viewer

import (
	"bytes"
	"image"

	// Frames arrive as WebP; PNG and JPEG are accepted for producers that
	// skip re-encoding.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

func decodeImage(payload []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return img, nil
}
