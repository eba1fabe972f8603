package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Generator produces PNG QR codes encoded as data URLs for embedding in API responses.
type Generator struct {
	size int
}

// GeneratorOption customises Generator behaviour.
type GeneratorOption func(*Generator)

// WithSize overrides the generated image dimension in pixels.
func WithSize(size int) GeneratorOption {
	return func(g *Generator) {
		if size > 0 {
			g.size = size
		}
	}
}

// NewGenerator constructs a Generator with sensible defaults.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{size: defaultSize}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// DataURL encodes the content as a PNG QR code wrapped in a data URL.
func (g *Generator) DataURL(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.New("qr: content is required")
	}

	size := defaultSize
	if g != nil && g.size > 0 {
		size = g.size
	}

	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("qr: encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
