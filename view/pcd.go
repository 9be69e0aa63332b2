package view

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"

	"go.viam.com/k4a/native"
)

// PCDType is the data encoding of a pcd file.
type PCDType int

const (
	// PCDAscii writes one point per text line.
	PCDAscii PCDType = iota
	// PCDBinary writes packed little endian records.
	PCDBinary
	// PCDCompressed writes each field as one little endian column, LZF compressed.
	PCDCompressed
)

func (t PCDType) String() string {
	switch t {
	case PCDAscii:
		return "ascii"
	case PCDBinary:
		return "binary"
	case PCDCompressed:
		return "binary_compressed"
	}
	return fmt.Sprintf("PCDType(%d)", int(t))
}

// ParsePCDType parses the DATA names of pcd files: ascii, binary and binary_compressed.
func ParsePCDType(s string) (PCDType, error) {
	for t := PCDAscii; t <= PCDCompressed; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return PCDAscii, errors.Errorf("unknown pcd type %q", s)
}

// pcdPoints holds the observed points of a cloud, one slice per field.
type pcdPoints struct {
	x, y, z []float32
	rgb     []uint32
}

func collectPoints(cloud, colors *View) *pcdPoints {
	pts := &pcdPoints{}
	for y := 0; y < cloud.height; y++ {
		for x := 0; x < cloud.width; x++ {
			z := int16(cloud.Uint16At(x, y, 2))
			if z == 0 {
				continue
			}
			pts.x = append(pts.x, float32(int16(cloud.Uint16At(x, y, 0)))/1000)
			pts.y = append(pts.y, float32(int16(cloud.Uint16At(x, y, 1)))/1000)
			pts.z = append(pts.z, float32(z)/1000)
			if colors != nil {
				off := colors.offset(x, y, 0)
				b, g, r := colors.buf[off], colors.buf[off+1], colors.buf[off+2]
				pts.rgb = append(pts.rgb, uint32(r)<<16|uint32(g)<<8|uint32(b))
			}
		}
	}
	return pts
}

// WritePCD writes the valid points of a point cloud view as a pcd file, in meters. Points with
// a zero Z were not observed and are skipped. If colors is non-nil it must be a BGRA32 view of
// the same dimensions, and each point gets the color of its pixel.
func WritePCD(out io.Writer, cloud, colors *View, pcdType PCDType) error {
	if cloud.desc.Channels != 3 || cloud.desc.ElementSize != 2 {
		return errors.Errorf("%v view is not a point cloud", cloud.desc.Format)
	}
	if colors != nil {
		if colors.desc.Format != native.ImageFormatColorBGRA32 {
			return errors.Errorf("point colors must be %v, not %v", native.ImageFormatColorBGRA32, colors.desc.Format)
		}
		if colors.width != cloud.width || colors.height != cloud.height {
			return errors.Errorf("color view is %dx%d but point cloud is %dx%d",
				colors.width, colors.height, cloud.width, cloud.height)
		}
	}
	if pcdType < PCDAscii || pcdType > PCDCompressed {
		return errors.Errorf("unknown pcd type %d", pcdType)
	}

	pts := collectPoints(cloud, colors)
	count := len(pts.z)
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "VERSION .7\n")
	if colors != nil {
		fmt.Fprintf(w, "FIELDS x y z rgb\nSIZE 4 4 4 4\nTYPE F F F I\nCOUNT 1 1 1 1\n")
	} else {
		fmt.Fprintf(w, "FIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n")
	}
	fmt.Fprintf(w, "WIDTH %d\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS %d\n", count, count)
	fmt.Fprintf(w, "DATA %v\n", pcdType)

	var err error
	switch pcdType {
	case PCDAscii:
		for i := 0; i < count; i++ {
			if colors != nil {
				fmt.Fprintf(w, "%f %f %f %d\n", pts.x[i], pts.y[i], pts.z[i], pts.rgb[i])
			} else {
				fmt.Fprintf(w, "%f %f %f\n", pts.x[i], pts.y[i], pts.z[i])
			}
		}
	case PCDBinary:
		rec := make([]byte, 16)
		n := 12
		if colors != nil {
			n = 16
		}
		for i := 0; i < count; i++ {
			binary.LittleEndian.PutUint32(rec, math.Float32bits(pts.x[i]))
			binary.LittleEndian.PutUint32(rec[4:], math.Float32bits(pts.y[i]))
			binary.LittleEndian.PutUint32(rec[8:], math.Float32bits(pts.z[i]))
			if colors != nil {
				binary.LittleEndian.PutUint32(rec[12:], pts.rgb[i])
			}
			w.Write(rec[:n]) //nolint:errcheck
		}
	case PCDCompressed:
		err = writeCompressedPoints(w, pts)
	}
	if err != nil {
		return err
	}
	return errors.Wrap(w.Flush(), "cannot write pcd")
}

// writeCompressedPoints writes the compressed and raw sizes as little endian uint32s followed
// by the LZF compressed columns.
func writeCompressedPoints(w io.Writer, pts *pcdPoints) error {
	raw := make([]byte, 0, 4*(3*len(pts.z)+len(pts.rgb)))
	for _, col := range [][]float32{pts.x, pts.y, pts.z} {
		for _, v := range col {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
		}
	}
	for _, v := range pts.rgb {
		raw = binary.LittleEndian.AppendUint32(raw, v)
	}
	var compressed []byte
	if len(raw) > 0 {
		// incompressible input grows by at most one byte per 32
		compressed = make([]byte, len(raw)+len(raw)/32+16)
		n, err := lzf.Compress(raw, compressed)
		if err != nil {
			return errors.Wrap(err, "cannot compress pcd points")
		}
		compressed = compressed[:n]
	}
	sizes := make([]byte, 8)
	binary.LittleEndian.PutUint32(sizes, uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := w.Write(sizes); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}
