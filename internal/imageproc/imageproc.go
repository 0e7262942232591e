// Package imageproc decodes inline base64 image uploads, resizes and
// recompresses them, and hands back an optimized data URL keyed by the
// client's placeholder ID.
package imageproc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"sync"

	"github.com/disintegration/imaging"
)

// dataURLPattern matches "data:image/<subtype>;base64,<payload>".
var dataURLPattern = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,(.+)$`)

// Processor resizes and recompresses inbound images per the configured
// bounding box and JPEG quality. Its parameters are hot-reloadable (see
// UpdateParams), so every read of them is mutex-guarded.
type Processor struct {
	mu            sync.RWMutex
	maxImageBytes int
	maxDimension  int
	jpegQuality   int
}

// New creates a Processor. maxImageKB and maxDimension/jpegQuality mirror the
// MAX_IMAGE_KB / IMAGE_MAX_DIMENSION / IMAGE_JPEG_QUALITY configuration.
func New(maxImageKB, maxDimension, jpegQuality int) *Processor {
	return &Processor{
		maxImageBytes: maxImageKB * 1024,
		maxDimension:  maxDimension,
		jpegQuality:   jpegQuality,
	}
}

// UpdateParams replaces the bounding box, quality, and size cap in place.
// Used by config hot-reload; in-flight Process calls keep using the
// parameters they started with.
func (p *Processor) UpdateParams(maxImageKB, maxDimension, jpegQuality int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxImageBytes = maxImageKB * 1024
	p.maxDimension = maxDimension
	p.jpegQuality = jpegQuality
}

// Process decodes, validates, resizes, and re-encodes base64Data, returning
// a "data:image/jpeg;base64,..." string on success.
func (p *Processor) Process(base64Data string) (string, error) {
	p.mu.RLock()
	maxImageBytes, maxDimension, jpegQuality := p.maxImageBytes, p.maxDimension, p.jpegQuality
	p.mu.RUnlock()

	match := dataURLPattern.FindStringSubmatch(base64Data)
	if match == nil {
		return "", fmt.Errorf("invalid image format: expected data:image/<type>;base64,<payload>")
	}
	payload := match[2]

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("invalid base64 payload: %w", err)
	}

	if limit := int(float64(maxImageBytes) * 1.05); len(raw) > limit {
		return "", fmt.Errorf("image exceeds maximum size of %d bytes", maxImageBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)

	// imaging.Encode writes through image/jpeg, which produces baseline JPEG;
	// the output is not progressive.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return "data:image/jpeg;base64," + encoded, nil
}
