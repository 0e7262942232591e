package server

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/require"
)

func makeTestPatch(t *testing.T, from, to string) string {
	t.Helper()
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	patches := dmp.PatchMake(from, diffs)
	return dmp.PatchToText(patches)
}

func tinyPNGDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// noisyPNGDataURL returns a PNG data URL whose decoded byte size is close to
// (but under) maxDecodedBytes — noise compresses poorly, so pixel count
// roughly tracks the target size, landing this test near the real
// MAX_IMAGE_KB default instead of a trivially small image.
func noisyPNGDataURL(t *testing.T, maxDecodedBytes int) string {
	t.Helper()
	// Noise is near-incompressible, and image/png writes a fully opaque RGBA
	// image as 8-bit RGB, so PNG output tracks width*height*3 closely; back
	// out a side length with headroom so the encoded result lands close to,
	// but safely under, maxDecodedBytes.
	side := int(math.Sqrt(float64(maxDecodedBytes) * 0.85 / 3))
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.LessOrEqual(t, buf.Len(), maxDecodedBytes, "test fixture must stay under the configured cap")
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
