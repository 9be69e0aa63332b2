// Package view interprets raw image buffers as typed, strided views without copying.
//
// A View aliases memory owned by someone else, usually a native image. It is only valid while
// that owner is alive; nothing here can detect that the memory was freed underneath it.
package view

import (
	"github.com/pkg/errors"

	"go.viam.com/k4a/native"
)

// Descriptor tells how a pixel format lays out its buffer.
type Descriptor struct {
	Format native.ImageFormat
	// ElementSize is the size of one channel value in bytes.
	ElementSize int
	// Channels is the number of elements per pixel.
	Channels int
	// RowsNum/RowsDen scale the image height to the number of buffer rows. NV12 stores a
	// half height chroma plane after the luma plane, so it has 3/2.
	RowsNum, RowsDen int
	// Flat formats have no pixel grid to speak of: compressed MJPG and opaque custom data.
	Flat bool
}

// PointCloudDescriptor describes the custom images produced by point cloud transformations:
// interleaved int16 X, Y, Z in millimeters, one channel per axis.
var PointCloudDescriptor = Descriptor{
	Format:      native.ImageFormatCustom,
	ElementSize: 2,
	Channels:    3,
	RowsNum:     1,
	RowsDen:     1,
}

// Describe looks up the descriptor of a format.
func Describe(format native.ImageFormat) (Descriptor, error) {
	desc := Descriptor{Format: format, ElementSize: 1, Channels: 1, RowsNum: 1, RowsDen: 1}
	switch format {
	case native.ImageFormatColorMJPG, native.ImageFormatCustom:
		desc.Flat = true
	case native.ImageFormatColorNV12:
		desc.RowsNum, desc.RowsDen = 3, 2
	case native.ImageFormatColorYUY2:
		desc.Channels = 2
	case native.ImageFormatColorBGRA32:
		desc.Channels = 4
	case native.ImageFormatDepth16, native.ImageFormatIR16, native.ImageFormatCustom16:
		desc.ElementSize = 2
	case native.ImageFormatCustom8:
	default:
		return Descriptor{}, errors.Errorf("unknown image format %v", format)
	}
	return desc, nil
}

// PixelSize is the size of one pixel in bytes, zero for flat formats.
func (d Descriptor) PixelSize() int {
	if d.Flat {
		return 0
	}
	return d.ElementSize * d.Channels
}

// Rows returns the number of buffer rows for an image height. Partial rows round up, so an odd
// height NV12 image keeps its last chroma row.
func (d Descriptor) Rows(height int) int {
	return (height*d.RowsNum + d.RowsDen - 1) / d.RowsDen
}

// MinStride is the smallest stride a row of width pixels fits in, zero for flat formats.
func (d Descriptor) MinStride(width int) int {
	return width * d.PixelSize()
}

// Shape is the logical shape of a view. Flat views have Height 1, Channels 1 and one element
// per byte.
type Shape struct {
	Height   int
	Width    int
	Channels int
}

// Len is the number of elements covered by the shape.
func (s Shape) Len() int {
	return s.Height * s.Width * s.Channels
}
