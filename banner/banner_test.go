package banner

import (
	"bytes"
	"image/png"
	"testing"

	"postmaker/model"
)

var fields = model.Fields{RomName: "LineageOS", Device: "OnePlus9", Version: "20.0"}

func TestRenderProducesPNG(t *testing.T) {
	r := New(t.TempDir()) // no assets: flat background, built-in face

	for _, style := range Styles() {
		img, err := r.Render(fields, "ayan", style)
		if err != nil {
			t.Fatalf("Render %s: %v", style, err)
		}
		decoded, err := png.Decode(bytes.NewReader(img))
		if err != nil {
			t.Fatalf("decode %s: %v", style, err)
		}
		b := decoded.Bounds()
		if b.Dx() != bannerWidth || b.Dy() != bannerHeight {
			t.Fatalf("%s dimensions = %dx%d", style, b.Dx(), b.Dy())
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r := New(t.TempDir())
	a, err := r.Render(fields, "ayan", StyleClassic)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := r.Render(fields, "ayan", StyleClassic)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same inputs produced different banners")
	}
}

func TestRenderRejectsUnknownStyle(t *testing.T) {
	r := New(t.TempDir())
	if _, err := r.Render(fields, "ayan", "vaporwave"); err == nil {
		t.Fatal("expected error for unknown style")
	}
}
