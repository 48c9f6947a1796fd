package pdf

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// US-Letter in points, used until a page reports its own size.
const (
	LetterWidth  = 612.0
	LetterHeight = 792.0
)

// RenderScale is the fixed rasterization scale.
const RenderScale = 1.5

var placeholderFill = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}

// rasterize draws runs onto a white bitmap of the page viewport at scale.
func rasterize(runs []TextRun, width, height, scale float64) *image.RGBA {
	img := blank(width, height, scale, image.White)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	for _, r := range runs {
		d.Dot = fixed.P(int(r.X*scale), int((height-r.Y)*scale))
		d.DrawString(r.Text)
	}
	return img
}

// placeholder draws a grey page carrying only a label.
func placeholder(label string, width, height, scale float64) *image.RGBA {
	img := blank(width, height, scale, image.NewUniform(placeholderFill))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(36*scale), int(72*scale)),
	}
	d.DrawString(label)
	return img
}

func blank(width, height, scale float64, fill image.Image) *image.RGBA {
	w := max(1, int(width*scale))
	h := max(1, int(height*scale))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), fill, image.Point{}, draw.Src)
	return img
}
