package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"phyto/internal/control"
)

var (
	overlayGreen = color.RGBA{0, 255, 0, 255}
	overlayRed   = color.RGBA{255, 60, 60, 255}
)

// RenderOverlay draws the classification region and the stable reading onto
// a JPEG frame: corner brackets around the analyzed center region, a small
// crosshair, and a status label. On any decode/encode failure the original
// frame is returned untouched.
func RenderOverlay(jpegData []byte, reading control.StableReading, regionSize int) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	c := overlayRed
	if reading.ColorClass == "green" {
		c = overlayGreen
	}

	region := CenterRegion(bounds, regionSize)
	drawBrackets(rgba, region, c, 2)
	drawCrosshair(rgba, region, c)

	label := "NO PLANT"
	if reading.Label != control.SeverityNoPlant {
		label = fmt.Sprintf("%s %.0f%%", strings.ToUpper(string(reading.Label)), reading.Confidence)
	}
	drawLabel(rgba, region.Min.X, region.Min.Y-8, label, c)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

// CenterRegion returns the square analysis region of the given side length
// centered in bounds, clamped to the frame.
func CenterRegion(bounds image.Rectangle, size int) image.Rectangle {
	cx := (bounds.Min.X + bounds.Max.X) / 2
	cy := (bounds.Min.Y + bounds.Max.Y) / 2
	half := size / 2

	region := image.Rect(cx-half, cy-half, cx+half, cy+half)
	return region.Intersect(bounds)
}

// drawBrackets draws corner brackets instead of a full box: less clutter on
// the live feed.
func drawBrackets(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	arm := r.Dx() / 6
	if arm < 8 {
		arm = 8
	}

	for t := 0; t < thickness; t++ {
		// Horizontal arms
		for i := 0; i < arm; i++ {
			setPx(img, r.Min.X+i, r.Min.Y+t, c)
			setPx(img, r.Max.X-1-i, r.Min.Y+t, c)
			setPx(img, r.Min.X+i, r.Max.Y-1-t, c)
			setPx(img, r.Max.X-1-i, r.Max.Y-1-t, c)
		}
		// Vertical arms
		for j := 0; j < arm; j++ {
			setPx(img, r.Min.X+t, r.Min.Y+j, c)
			setPx(img, r.Max.X-1-t, r.Min.Y+j, c)
			setPx(img, r.Min.X+t, r.Max.Y-1-j, c)
			setPx(img, r.Max.X-1-t, r.Max.Y-1-j, c)
		}
	}
}

func drawCrosshair(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	cx := (r.Min.X + r.Max.X) / 2
	cy := (r.Min.Y + r.Max.Y) / 2
	for d := -6; d <= 6; d++ {
		setPx(img, cx+d, cy, c)
		setPx(img, cx, cy+d, c)
	}
}

func setPx(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.Set(x, y, c)
	}
}

func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	// Background rectangle so the text stays readable on foliage
	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			setPx(img, x+dx, y+dy, bgColor)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
