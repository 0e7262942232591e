package imageproc

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngDataURL(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestProcessResizesAndReencodesAsJPEG(t *testing.T) {
	p := New(250, 400, 40)

	result, err := p.Process(pngDataURL(t, 800, 600))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result, "data:image/jpeg;base64,"))

	payload := strings.TrimPrefix(result, "data:image/jpeg;base64,")
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, cfg.Width, 400)
	assert.LessOrEqual(t, cfg.Height, 400)
}

func TestProcessRejectsMalformedDataURL(t *testing.T) {
	p := New(250, 400, 40)
	_, err := p.Process("not-a-data-url")
	assert.Error(t, err)
}

func TestProcessRejectsOversizeImage(t *testing.T) {
	p := New(1, 400, 40) // 1KB cap
	_, err := p.Process(pngDataURL(t, 800, 600))
	assert.Error(t, err)
}

func TestProcessSizeBoundary(t *testing.T) {
	capBytes := 1024
	p := New(1, 400, 40) // 1 KB cap, 1024 bytes

	atLimit := make([]byte, capBytes)
	_, err := p.Process("data:image/png;base64," + base64.StdEncoding.EncodeToString(atLimit))
	require.Error(t, err) // garbage bytes, but must fail at decode, not the size gate
	assert.NotContains(t, err.Error(), "exceeds maximum size")

	overLimit := make([]byte, int(float64(capBytes)*1.05)+1)
	_, err = p.Process("data:image/png;base64," + base64.StdEncoding.EncodeToString(overLimit))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
}

func TestUpdateParamsAffectsSubsequentCalls(t *testing.T) {
	p := New(250, 400, 40)
	p.UpdateParams(250, 100, 40)

	result, err := p.Process(pngDataURL(t, 800, 600))
	require.NoError(t, err)

	payload := strings.TrimPrefix(result, "data:image/jpeg;base64,")
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, 100)
	assert.LessOrEqual(t, cfg.Height, 100)
}

func TestProcessDoesNotEnlargeSmallImages(t *testing.T) {
	p := New(250, 400, 40)

	result, err := p.Process(pngDataURL(t, 50, 40))
	require.NoError(t, err)

	payload := strings.TrimPrefix(result, "data:image/jpeg;base64,")
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}
