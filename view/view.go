package view

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"unsafe"

	"github.com/pkg/errors"

	"go.viam.com/k4a/native"
)

// View is a typed overlay on an image buffer.
type View struct {
	desc   Descriptor
	buf    []byte
	width  int
	height int
	stride int
}

// New builds a view of buf for the given format. A stride of zero picks the tightest stride
// for the format. Flat formats ignore width, height and stride beyond recording them.
func New(format native.ImageFormat, buf []byte, width, height, stride int) (*View, error) {
	desc, err := Describe(format)
	if err != nil {
		return nil, err
	}
	return NewWithDescriptor(desc, buf, width, height, stride)
}

// NewWithDescriptor builds a view with an explicit descriptor, for custom layouts such as
// PointCloudDescriptor.
func NewWithDescriptor(desc Descriptor, buf []byte, width, height, stride int) (*View, error) {
	if width < 0 || height < 0 || stride < 0 {
		return nil, errors.Errorf("invalid %v dimensions %dx%d stride %d", desc.Format, width, height, stride)
	}
	v := &View{desc: desc, buf: buf, width: width, height: height, stride: stride}
	if desc.Flat {
		return v, nil
	}
	if stride == 0 {
		v.stride = desc.MinStride(width)
	}
	if v.stride < desc.MinStride(width) {
		return nil, errors.Errorf("%v stride %d is smaller than a %d pixel row (%d bytes)",
			desc.Format, v.stride, width, desc.MinStride(width))
	}
	if need := v.stride * desc.Rows(height); len(buf) < need {
		return nil, errors.Errorf("%v buffer holds %d bytes, %dx%d with stride %d needs %d",
			desc.Format, len(buf), width, height, v.stride, need)
	}
	return v, nil
}

// Descriptor returns the layout of the view.
func (v *View) Descriptor() Descriptor {
	return v.desc
}

// Width returns the image width in pixels.
func (v *View) Width() int {
	return v.width
}

// Height returns the image height in pixels. For NV12 this excludes the chroma plane.
func (v *View) Height() int {
	return v.height
}

// Stride returns the bytes per buffer row.
func (v *View) Stride() int {
	return v.stride
}

// Shape returns the logical shape. NV12 views report the extended height including the
// chroma plane, and flat views report one row of bytes.
func (v *View) Shape() Shape {
	if v.desc.Flat {
		return Shape{Height: 1, Width: len(v.buf), Channels: 1}
	}
	return Shape{Height: v.desc.Rows(v.height), Width: v.width, Channels: v.desc.Channels}
}

// Bytes aliases the whole buffer.
func (v *View) Bytes() []byte {
	return v.buf
}

// Row aliases buffer row y, trimmed to the pixel data. Valid rows are [0, Shape().Height).
func (v *View) Row(y int) []byte {
	if v.desc.Flat {
		return v.buf
	}
	start := y * v.stride
	return v.buf[start : start+v.desc.MinStride(v.width)]
}

// Uint16 aliases the buffer as 16-bit elements in host byte order. Native buffers are little
// endian, which is the byte order of every supported host.
func (v *View) Uint16() ([]uint16, error) {
	if v.desc.ElementSize != 2 {
		return nil, errors.Errorf("%v elements are %d bytes wide, not 2", v.desc.Format, v.desc.ElementSize)
	}
	if len(v.buf) == 0 {
		return []uint16{}, nil
	}
	if uintptr(unsafe.Pointer(&v.buf[0]))%unsafe.Alignof(uint16(0)) != 0 {
		return nil, errors.New("buffer is not aligned for 16-bit access")
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&v.buf[0])), len(v.buf)/2), nil
}

// Int16 is like Uint16 but signed, for point cloud coordinates.
func (v *View) Int16() ([]int16, error) {
	u, err := v.Uint16()
	if err != nil || len(u) == 0 {
		return nil, err
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&u[0])), len(u)), nil
}

func (v *View) offset(x, y, c int) int {
	return y*v.stride + (x*v.desc.Channels+c)*v.desc.ElementSize
}

// Uint16At reads channel c of the pixel at (x, y) in a 16-bit view.
func (v *View) Uint16At(x, y, c int) uint16 {
	off := v.offset(x, y, c)
	return binary.LittleEndian.Uint16(v.buf[off : off+2])
}

// SetUint16At writes channel c of the pixel at (x, y) in a 16-bit view.
func (v *View) SetUint16At(x, y, c int, val uint16) {
	off := v.offset(x, y, c)
	binary.LittleEndian.PutUint16(v.buf[off:off+2], val)
}

// Uint8At reads channel c of the pixel at (x, y) in an 8-bit view.
func (v *View) Uint8At(x, y, c int) uint8 {
	return v.buf[v.offset(x, y, c)]
}

// SetUint8At writes channel c of the pixel at (x, y) in an 8-bit view.
func (v *View) SetUint8At(x, y, c int, val uint8) {
	v.buf[v.offset(x, y, c)] = val
}

// Image returns an image.Image over the buffer. Every format except MJPG aliases the buffer,
// so writes through draw.Image show up in the native image. MJPG is decoded into a new image.
func (v *View) Image() (image.Image, error) {
	rect := image.Rect(0, 0, v.width, v.height)
	switch v.desc.Format {
	case native.ImageFormatColorMJPG:
		img, err := jpeg.Decode(bytes.NewReader(v.buf))
		if err != nil {
			return nil, errors.Wrap(err, "cannot decode mjpg frame")
		}
		return img, nil
	case native.ImageFormatColorNV12:
		return &NV12{Pix: v.buf, Stride: v.stride, Rect: rect}, nil
	case native.ImageFormatColorYUY2:
		return &YUY2{Pix: v.buf, Stride: v.stride, Rect: rect}, nil
	case native.ImageFormatColorBGRA32:
		return &BGRA{Pix: v.buf, Stride: v.stride, Rect: rect}, nil
	case native.ImageFormatDepth16, native.ImageFormatIR16, native.ImageFormatCustom16:
		return &Gray16LE{Pix: v.buf, Stride: v.stride, Rect: rect}, nil
	case native.ImageFormatCustom8:
		return &image.Gray{Pix: v.buf, Stride: v.stride, Rect: rect}, nil
	case native.ImageFormatCustom:
		return nil, errors.New("custom images have no image representation")
	default:
		return nil, errors.Errorf("unknown image format %v", v.desc.Format)
	}
}
