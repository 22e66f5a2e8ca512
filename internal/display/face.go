// Package display renders the static greeting shown on the monochrome panel.
package display

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Panel geometry.
const (
	Width  = 128
	Height = 64
)

const Greeting = "Smile! You're on Camera"

const textBaseline = 62

var (
	on  = color.Gray{Y: 0xff}
	off = color.Gray{Y: 0}
)

// Face returns the smiley with the greeting underneath, sized for the panel.
func Face() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: off}, image.Point{}, draw.Src)

	circle(img, 64, 25, 25)
	disc(img, 54, 19, 3)
	disc(img, 74, 19, 3)
	for i := -12; i <= 12; i++ {
		img.SetGray(64+i, 38-(i*i)/25, on)
	}

	text(img, Greeting, textBaseline)
	return img
}

// circle draws an outline with the midpoint algorithm.
func circle(img *image.Gray, cx, cy, r int) {
	x, y := r, 0
	d := 1 - r
	for x >= y {
		for _, p := range [8][2]int{
			{x, y}, {y, x}, {-y, x}, {-x, y},
			{-x, -y}, {-y, -x}, {y, -x}, {x, -y},
		} {
			img.SetGray(cx+p[0], cy+p[1], on)
		}
		y++
		if d < 0 {
			d += 2*y + 1
		} else {
			x--
			d += 2*(y-x) + 1
		}
	}
}

func disc(img *image.Gray, cx, cy, r int) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.SetGray(cx+dx, cy+dy, on)
			}
		}
	}
}

// text draws s centred horizontally with its baseline at y. A line wider
// than the panel is squeezed to fit.
func text(img *image.Gray, s string, y int) {
	face := basicfont.Face7x13
	m := face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()

	w := font.MeasureString(face, s).Ceil()
	line := image.NewGray(image.Rect(0, 0, w, ascent+descent))
	d := &font.Drawer{
		Dst:  line,
		Src:  &image.Uniform{C: on},
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(s)

	dw := min(w, Width)
	x := (Width - dw) / 2
	dst := image.Rect(x, y-ascent, x+dw, y+descent)
	xdraw.NearestNeighbor.Scale(img, dst, line, line.Bounds(), xdraw.Over, nil)
}
