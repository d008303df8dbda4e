// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func TestTarget_Optimize_JPEGReencodesAtTargetQuality(t *testing.T) {
	tg := &target{key: targetKey{device: 1, channel: 1}, format: "jpeg"}
	raw := encodeJPEG(t, 100)

	optimized := tg.optimize(raw)

	decoded, err := jpeg.Decode(bytes.NewReader(optimized))
	require.NoError(t, err, "optimized bytes must still decode as JPEG")
	assert.Equal(t, testImage().Bounds(), decoded.Bounds())
}

func TestTarget_Optimize_PNGRecompresses(t *testing.T) {
	tg := &target{key: targetKey{device: 1, channel: 1}, format: "png"}
	raw := encodePNG(t)

	optimized := tg.optimize(raw)

	decoded, err := png.Decode(bytes.NewReader(optimized))
	require.NoError(t, err, "optimized bytes must still decode as PNG")
	assert.Equal(t, testImage().Bounds(), decoded.Bounds())
}

func TestTarget_Optimize_CorruptFrameFallsBackToRaw(t *testing.T) {
	tg := &target{key: targetKey{device: 1, channel: 1}, format: "jpeg"}
	garbage := []byte("not an image")

	assert.Equal(t, garbage, tg.optimize(garbage))
}
