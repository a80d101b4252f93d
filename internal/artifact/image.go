// Package artifact produces the passphrase artifacts that may cross the worker
// boundary: a rendered passphrase image and an SMS backup ciphertext.
package artifact

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DefaultImageSize is the edge length in pixels of a rendered passphrase.
const DefaultImageSize = 400

// Renderer turns a passphrase into an opaque image.
type Renderer interface {
	Render(passphrase string) ([]byte, error)
}

// QRRenderer renders a passphrase as a PNG QR code.
type QRRenderer struct {
	Size int
}

// Render implements Renderer.
func (r QRRenderer) Render(passphrase string) ([]byte, error) {
	size := r.Size
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(passphrase, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render passphrase image: %w", err)
	}
	return png, nil
}
