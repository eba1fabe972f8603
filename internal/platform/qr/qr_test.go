package qr

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDataURLEncodesPNG(t *testing.T) {
	g := NewGenerator(WithSize(128))

	url, err := g.DataURL("https://pedidos.example.com/pedido/RFL000001")
	if err != nil {
		t.Fatalf("DataURL returned error: %v", err)
	}

	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("expected data url prefix, got %q", url[:32])
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if len(raw) < 8 || raw[1] != 'P' || raw[2] != 'N' || raw[3] != 'G' {
		t.Fatalf("payload is not a PNG image")
	}
}

func TestDataURLRejectsEmptyContent(t *testing.T) {
	g := NewGenerator()
	if _, err := g.DataURL("   "); err == nil {
		t.Fatal("expected error for empty content")
	}
}
