// Package banner renders announcement banner images from build fields.
package banner

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"postmaker/model"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	bannerWidth  = 1600
	bannerHeight = 1000
)

const (
	// StyleClassic centers a large ROM name on a dark background.
	StyleClassic = "classic"
	// StyleModern left-aligns the text on a light background.
	StyleModern = "modern"
)

// Styles lists the selectable banner styles, in prompt order.
func Styles() []string { return []string{StyleClassic, StyleModern} }

// ValidStyle reports whether name is a known style.
func ValidStyle(name string) bool {
	return name == StyleClassic || name == StyleModern
}

// Renderer produces banner images. It is pure given the assets on disk:
// the same fields and style always yield the same bytes.
type Renderer struct {
	assetDir string
}

func New(assetDir string) *Renderer {
	return &Renderer{assetDir: assetDir}
}

// Render draws the banner for the given fields and returns PNG bytes.
func (r *Renderer) Render(f model.Fields, maintainer, style string) ([]byte, error) {
	if !ValidStyle(style) {
		return nil, fmt.Errorf("unknown banner style %q", style)
	}

	img := image.NewRGBA(image.Rect(0, 0, bannerWidth, bannerHeight))
	r.drawBackground(img, style)

	romName := strings.ToLower(f.RomName)
	device := strings.ToLower(f.Device)

	switch style {
	case StyleModern:
		titleSize := 150.0
		if len(romName) > 6 {
			titleSize = 95.0
		}
		title := r.face("singa.ttf", titleSize)
		sub := r.face("outfit.ttf", 18)
		ink := color.RGBA{23, 23, 23, 255}

		titleY := bannerHeight/2 + int(titleSize)/3
		drawString(img, title, romName, 73, titleY, ink)
		subtext := fmt.Sprintf(" for %s by %s", device, strings.ToLower(maintainer))
		drawString(img, sub, subtext, 73, titleY+40, ink)

	default: // StyleClassic
		titleSize := 133.0
		if len(romName) > 12 {
			titleSize = 97.0
		}
		title := r.face("against.otf", titleSize)
		sub := r.face("outfit.ttf", 20)
		white := color.RGBA{255, 255, 255, 255}

		titleW := measure(title, romName)
		titleY := bannerHeight/2 + int(titleSize)/3 - 30
		drawString(img, title, romName, (bannerWidth-titleW)/2, titleY, white)

		subtext := strings.ToUpper(fmt.Sprintf("FOR %s | BY %s", device, maintainer))
		subW := measure(sub, subtext)
		drawString(img, sub, subtext, (bannerWidth-subW)/2, titleY+60, white)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode banner: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBackground paints the style's background image, or a flat fill when the
// asset is missing.
func (r *Renderer) drawBackground(dst *image.RGBA, style string) {
	fill := color.RGBA{16, 16, 24, 255} // classic: near-black
	if style == StyleModern {
		fill = color.RGBA{237, 237, 237, 255}
	}
	draw.Draw(dst, dst.Bounds(), &image.Uniform{fill}, image.Point{}, draw.Src)

	path := filepath.Join(r.assetDir, style+".png")
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()
	bg, err := png.Decode(file)
	if err != nil {
		return
	}
	draw.Draw(dst, dst.Bounds(), bg, bg.Bounds().Min, draw.Src)
}

// face loads a truetype face from the asset font directory, falling back to
// the built-in bitmap face when the font file is missing.
func (r *Renderer) face(name string, size float64) font.Face {
	data, err := os.ReadFile(filepath.Join(r.assetDir, "fonts", name))
	if err != nil {
		return basicfont.Face7x13
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(f, &truetype.Options{Size: size})
}

func measure(face font.Face, s string) int {
	d := font.Drawer{Face: face}
	return d.MeasureString(s).Ceil()
}

func drawString(img *image.RGBA, face font.Face, s string, x, y int, ink color.Color) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
