package qr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n"}`

func TestRender(t *testing.T) {
	out, err := Render(payload)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Greater(t, strings.Count(out, "\n"), 10)
}

func TestRenderRejectsEmptyAndOversized(t *testing.T) {
	_, err := Render("")
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Render(strings.Repeat("a", 4000))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPNGScanRoundTrip(t *testing.T) {
	png, err := PNG(payload, 512)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "code.png")
	require.NoError(t, os.WriteFile(path, png, 0o644))

	got, err := ScanImage(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Scan resolves a path to the image it names.
	got, err = Scan("  " + path + "\n")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestScanImageRejectsNonImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o644))

	_, err := ScanImage(path)
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestScanText(t *testing.T) {
	got, err := Scan("\t" + payload + "  ")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = Scan("   ")
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
