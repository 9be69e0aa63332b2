package view

import (
	"encoding/binary"
	"image"
	"image/color"
)

// BGRA is an in-memory image whose pixels are stored as B, G, R, A bytes.
type BGRA struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// ColorModel returns the non-premultiplied RGBA model.
func (p *BGRA) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds returns the image bounds.
func (p *BGRA) Bounds() image.Rectangle {
	return p.Rect
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (p *BGRA) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*4
}

// At returns the color of the pixel at (x, y).
func (p *BGRA) At(x, y int) color.Color {
	return p.NRGBAAt(x, y)
}

// NRGBAAt returns the color of the pixel at (x, y) without boxing it.
func (p *BGRA) NRGBAAt(x, y int) color.NRGBA {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.NRGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+4 : i+4]
	return color.NRGBA{R: s[2], G: s[1], B: s[0], A: s[3]}
}

// Set writes the pixel at (x, y).
func (p *BGRA) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+4 : i+4]
	s[0], s[1], s[2], s[3] = n.B, n.G, n.R, n.A
}

// Gray16LE is a 16-bit single channel image stored little endian, as depth and IR images are.
type Gray16LE struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// ColorModel returns the 16-bit gray model.
func (p *Gray16LE) ColorModel() color.Model {
	return color.Gray16Model
}

// Bounds returns the image bounds.
func (p *Gray16LE) Bounds() image.Rectangle {
	return p.Rect
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (p *Gray16LE) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*2
}

// At returns the color of the pixel at (x, y).
func (p *Gray16LE) At(x, y int) color.Color {
	return color.Gray16{Y: p.Gray16At(x, y)}
}

// Gray16At returns the raw value at (x, y), e.g. depth in millimeters.
func (p *Gray16LE) Gray16At(x, y int) uint16 {
	if !(image.Point{x, y}.In(p.Rect)) {
		return 0
	}
	i := p.PixOffset(x, y)
	return binary.LittleEndian.Uint16(p.Pix[i : i+2])
}

// Set writes the pixel at (x, y).
func (p *Gray16LE) Set(x, y int, c color.Color) {
	p.SetGray16(x, y, color.Gray16Model.Convert(c).(color.Gray16).Y)
}

// SetGray16 writes the raw value at (x, y).
func (p *Gray16LE) SetGray16(x, y int, v uint16) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	binary.LittleEndian.PutUint16(p.Pix[i:i+2], v)
}

// NV12 is a Y plane followed by an interleaved, half resolution CbCr plane with the same stride.
type NV12 struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// ColorModel returns the YCbCr model.
func (p *NV12) ColorModel() color.Model {
	return color.YCbCrModel
}

// Bounds returns the image bounds.
func (p *NV12) Bounds() image.Rectangle {
	return p.Rect
}

// At returns the color of the pixel at (x, y).
func (p *NV12) At(x, y int) color.Color {
	return p.YCbCrAt(x, y)
}

// YCbCrAt returns the color of the pixel at (x, y) without boxing it.
func (p *NV12) YCbCrAt(x, y int) color.YCbCr {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.YCbCr{}
	}
	x, y = x-p.Rect.Min.X, y-p.Rect.Min.Y
	yi := y*p.Stride + x
	ci := p.Rect.Dy()*p.Stride + (y/2)*p.Stride + (x/2)*2
	return color.YCbCr{Y: p.Pix[yi], Cb: p.Pix[ci], Cr: p.Pix[ci+1]}
}

// YUY2 packs two pixels in four bytes: Y0, U, Y1, V.
type YUY2 struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// ColorModel returns the YCbCr model.
func (p *YUY2) ColorModel() color.Model {
	return color.YCbCrModel
}

// Bounds returns the image bounds.
func (p *YUY2) Bounds() image.Rectangle {
	return p.Rect
}

// At returns the color of the pixel at (x, y).
func (p *YUY2) At(x, y int) color.Color {
	return p.YCbCrAt(x, y)
}

// YCbCrAt returns the color of the pixel at (x, y) without boxing it.
func (p *YUY2) YCbCrAt(x, y int) color.YCbCr {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.YCbCr{}
	}
	x, y = x-p.Rect.Min.X, y-p.Rect.Min.Y
	i := y*p.Stride + (x/2)*4
	luma := p.Pix[i]
	if x%2 == 1 {
		luma = p.Pix[i+2]
	}
	return color.YCbCr{Y: luma, Cb: p.Pix[i+1], Cr: p.Pix[i+3]}
}
