package detection

import (
	"fmt"
	"image"
	"image/color"

	"github.com/muesli/gamut"
	"gocv.io/x/gocv"
)

// Stable color per key, every next key is shifted by 153 degrees
// of hue from the previous one
type Palette struct {
	base   color.Color
	colors map[int]color.RGBA
}

func NewPalette() *Palette {
	return &Palette{
		base:   color.RGBA{255, 0, 0, 255},
		colors: make(map[int]color.RGBA),
	}
}

func (p *Palette) Color(key int) color.RGBA {
	if c, ok := p.colors[key]; ok {
		return c
	}
	c := gamut.HueOffset(p.base, (153*len(p.colors))%360)
	r, g, b, _ := c.RGBA()
	rgba := color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 255}
	p.colors[key] = rgba
	return rgba
}

func Label(b Box, name string) string {
	if b.TrackId > 0 {
		return fmt.Sprintf("id:%d %s %.2f", b.TrackId, name, b.Confidence)
	}
	return fmt.Sprintf("%s %.2f", name, b.Confidence)
}

// Tracked boxes are colored by identity, the rest by class
func Plot(m *gocv.Mat, boxes []Box, names func(int) string, palette *Palette) error {
	for _, b := range boxes {
		var c color.RGBA
		if b.TrackId > 0 {
			c = palette.Color(-b.TrackId)
		} else {
			c = palette.Color(b.ClassId)
		}
		rect := b.Rect()
		if err := gocv.Rectangle(m, rect, c, 2); err != nil {
			return err
		}
		pt := image.Pt(rect.Min.X, max(rect.Min.Y-5, 12))
		if err := gocv.PutText(m, Label(b, names(b.ClassId)), pt, gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
			return err
		}
	}
	return nil
}
