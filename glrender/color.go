package glrender

import (
	"image/color"

	math "github.com/chewxy/math32"
	"github.com/soypat/fnode"
	"github.com/soypat/glgl/math/ms1"
)

// HSV manipulation based on Esme Lamb's (@dedelala) color work presented
// at Gophercon AU 2024. https://github.com/dedelala/disco/tree/main/color

var (
	red        = color.RGBA{R: 255, A: 255}
	background = color.RGBA{R: 0x20, G: 0x22, B: 0x26, A: 255}
	linkColor  = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 255}
	textColor  = color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 255}
)

// CategoryColor returns the header color used for nodes of category c.
// Categories are spread evenly around the hue circle.
func CategoryColor(c fnode.Category) color.RGBA {
	const numCategories = fnode.CategorySink + 1
	if c >= numCategories {
		return red
	}
	h := float32(c) / float32(numCategories)
	return rgbToRGBA(hsvToRGB(h, 0.55, 0.85))
}

// bodyColor returns a lighter version of the header color for the value rows.
func bodyColor(c fnode.Category) color.RGBA {
	h0, s0, v0 := colorToHSV(CategoryColor(c))
	return rgbToRGBA(hsvToRGB(interpHSV(h0, s0, v0, h0, 0, 1, 0.75)))
}

func rgbToRGBA(r, g, b float32) color.RGBA {
	return color.RGBA{
		R: uint8(ms1.Clamp(r, 0, 1) * math.MaxUint8),
		G: uint8(ms1.Clamp(g, 0, 1) * math.MaxUint8),
		B: uint8(ms1.Clamp(b, 0, 1) * math.MaxUint8),
		A: 255,
	}
}

func interpHSV(h0, s0, v0, h1, s1, v1, t float32) (h, s, v float32) {
	switch {
	case h1-h0 > 0.5:
		h0 += 1.0
	case h1-h0 < -0.5:
		h1 += 1.0
	}
	h = math.Mod(ms1.Interp(h0, h1, t), 1)
	s = ms1.Interp(s0, s1, t)
	v = ms1.Interp(v0, v1, t)
	return h, s, v
}

func colorToHSV(c color.Color) (h, s, v float32) {
	r0, g0, b0, _ := c.RGBA()
	return rgbToHSV(float32(r0>>8)/math.MaxUint8, float32(g0>>8)/math.MaxUint8, float32(b0>>8)/math.MaxUint8)
}

// hsvToRGB converts hue, saturation and brightness values on the range of 0.0
// to 1.0 to RGB floating point values on the range of 0.0 to 1.0
func hsvToRGB(h, s, v float32) (r, g, b float32) {
	var (
		c = s * v
		x = c * (1 - math.Abs(math.Mod(h*6, 2)-1))
		m = v - c
	)
	switch {
	case h >= 0 && h <= 1.0/6:
		r, g, b = c, x, 0
	case h > 1.0/6 && h <= 2.0/6:
		r, g, b = x, c, 0
	case h > 2.0/6 && h <= 3.0/6:
		r, g, b = 0, c, x
	case h > 3.0/6 && h <= 4.0/6:
		r, g, b = 0, x, c
	case h > 4.0/6 && h <= 5.0/6:
		r, g, b = x, 0, c
	case h > 5.0/6 && h <= 1.0:
		r, g, b = c, 0, x
	}
	return r + m, g + m, b + m
}

// rgbToHSV converts red, green, and blue floating point values on the range
// 0.0 to 1.0 to hue, saturation and brightness values on the range 0.0 to 1.0
func rgbToHSV(r, g, b float32) (h, s, v float32) {
	var (
		xmax = max(r, g, b)
		xmin = min(r, g, b)
		c    = xmax - xmin
	)
	v = xmax
	switch {
	case c == 0:
		h = 0
	case v == r:
		h = (g - b) / (c * 6)
	case v == g:
		h = 1.0/3 + (b-r)/(c*6)
	case v == b:
		h = 2.0/3 + (r-g)/(c*6)
	}
	if h < 0 {
		h += 1
	}
	if xmax > 0 {
		s = c / xmax
	}
	return h, s, v
}
