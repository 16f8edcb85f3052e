// Package qr is the visual boundary of the pairing handshake: it renders a
// payload as a QR code and reads a payload back from a scanned image.
package qr

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // scanned photos
	_ "image/png"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"

	"github.com/rescp17/reactionTrainer/pkg/signaling"
)

var (
	ErrPayloadTooLarge = errors.New("payload does not fit in a QR code")
	ErrEmptyPayload    = errors.New("empty payload")
	ErrNotAnImage      = errors.New("file is not a supported image")
	ErrNoCode          = errors.New("no QR code found in image")
)

// Render draws text as a QR code using half-block characters, two modules
// per terminal cell row.
func Render(text string) (string, error) {
	code, err := newCode(text)
	if err != nil {
		return "", err
	}
	return code.ToSmallString(false), nil
}

// PNG encodes text as a size x size PNG image.
func PNG(text string, size int) ([]byte, error) {
	code, err := newCode(text)
	if err != nil {
		return nil, err
	}
	return code.PNG(size)
}

func newCode(text string) (*qrcode.QRCode, error) {
	if text == "" {
		return nil, ErrEmptyPayload
	}
	if len(text) > signaling.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(text), signaling.MaxPayloadBytes)
	}
	code, err := qrcode.New(text, qrcode.Low)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
	}
	return code, nil
}

var imageTypes = []string{"image/png", "image/jpeg"}

// ScanImage reads the QR code contained in the image at path.
func ScanImage(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !mimetype.EqualsAny(mtype.String(), imageTypes...) {
		return "", fmt.Errorf("%w: %s is %s", ErrNotAnImage, path, mtype.String())
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	return scan(img)
}

func scan(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to binarize image: %w", err)
	}
	result, err := zxingqr.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return result.GetText(), nil
}

// ScanText accepts a payload typed or pasted by the user, the keyboard
// equivalent of pointing a camera at the other device.
func ScanText(input string) (string, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", ErrEmptyPayload
	}
	return text, nil
}

// Scan resolves user input into a payload: an existing file is scanned as an
// image, anything else is taken as the payload itself.
func Scan(input string) (string, error) {
	text, err := ScanText(input)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(text, "{") {
		if info, statErr := os.Stat(text); statErr == nil && !info.IsDir() {
			return ScanImage(text)
		}
	}
	return text, nil
}
