package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // register decoder
)

// MaxImageBytes is the default upload ceiling.
const MaxImageBytes = 10 << 20

// ValidateImage checks that img is a decodable raster image no larger than
// maxBytes and returns its sniffed MIME type. maxBytes <= 0 selects
// MaxImageBytes.
func ValidateImage(img []byte, maxBytes int) (string, error) {
	const op = "vision.validate_image"

	if maxBytes <= 0 {
		maxBytes = MaxImageBytes
	}
	if len(img) == 0 {
		return "", NewError(KindInvalidImage, op, errors.New("empty image"))
	}
	if len(img) > maxBytes {
		return "", NewError(KindInvalidImage, op, fmt.Errorf("image is %d bytes, limit is %d", len(img), maxBytes))
	}

	mime := mimetype.Detect(img)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", NewError(KindInvalidImage, op, fmt.Errorf("unsupported content type %s", mime.String()))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "", NewError(KindInvalidImage, op, fmt.Errorf("decode %s: %w", mime.String(), err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", NewError(KindInvalidImage, op, errors.New("image has no pixels"))
	}

	return mime.String(), nil
}
