package view

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

var (
	nearColor = colorful.Hcl(260, 0.6, 0.35)
	farColor  = colorful.Hcl(40, 0.9, 0.8)
)

// ColorizeDepth renders a 16-bit depth view for people to look at. Depths between minMm and
// maxMm blend from dark blue to light orange in HCL space, and zero depth is black.
func ColorizeDepth(depth *View, minMm, maxMm uint16) (*image.NRGBA, error) {
	if depth.desc.ElementSize != 2 || depth.desc.Channels != 1 {
		return nil, errors.Errorf("cannot colorize %v view as depth", depth.desc.Format)
	}
	if maxMm <= minMm {
		return nil, errors.Errorf("invalid depth range [%d, %d]", minMm, maxMm)
	}
	// one color per centimeter is plenty
	steps := int(maxMm-minMm)/10 + 1
	palette := make([]color.NRGBA, steps)
	for i := range palette {
		c := nearColor.BlendHcl(farColor, float64(i)/float64(steps-1)).Clamped()
		r, g, b := c.RGB255()
		palette[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}

	out := image.NewNRGBA(image.Rect(0, 0, depth.width, depth.height))
	for y := 0; y < depth.height; y++ {
		for x := 0; x < depth.width; x++ {
			d := depth.Uint16At(x, y, 0)
			if d == 0 {
				out.SetNRGBA(x, y, color.NRGBA{A: 255})
				continue
			}
			if d < minMm {
				d = minMm
			}
			if d > maxMm {
				d = maxMm
			}
			out.SetNRGBA(x, y, palette[int(d-minMm)/10])
		}
	}
	return out, nil
}
