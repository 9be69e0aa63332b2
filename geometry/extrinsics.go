package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Extrinsics is a rigid transform taking points from one camera frame to another:
// p' = R*p + T. Rotation is row major, Translation is in millimeters.
type Extrinsics struct {
	Rotation    [9]float64 `json:"rotation"`
	Translation r3.Vector  `json:"translation_mm"`
}

// IdentityExtrinsics maps every point to itself.
func IdentityExtrinsics() Extrinsics {
	return Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// RotationAboutAxis builds a row major rotation matrix from an axis and an angle in radians.
func RotationAboutAxis(axis r3.Vector, angle float64) [9]float64 {
	a := axis.Normalize()
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c
	return [9]float64{
		t*a.X*a.X + c, t*a.X*a.Y - s*a.Z, t*a.X*a.Z + s*a.Y,
		t*a.X*a.Y + s*a.Z, t*a.Y*a.Y + c, t*a.Y*a.Z - s*a.X,
		t*a.X*a.Z - s*a.Y, t*a.Y*a.Z + s*a.X, t*a.Z*a.Z + c,
	}
}

func (e Extrinsics) rotation() *mat.Dense {
	return mat.NewDense(3, 3, e.Rotation[:])
}

func fromDense(r *mat.Dense, t r3.Vector) Extrinsics {
	e := Extrinsics{Translation: t}
	copy(e.Rotation[:], r.RawMatrix().Data)
	return e
}

// Apply transforms a point.
func (e Extrinsics) Apply(p r3.Vector) r3.Vector {
	r := e.Rotation
	return r3.Vector{
		X: r[0]*p.X + r[1]*p.Y + r[2]*p.Z + e.Translation.X,
		Y: r[3]*p.X + r[4]*p.Y + r[5]*p.Z + e.Translation.Y,
		Z: r[6]*p.X + r[7]*p.Y + r[8]*p.Z + e.Translation.Z,
	}
}

// Inverse returns the transform going the other way: R' = Rᵀ, T' = -Rᵀ*T.
func (e Extrinsics) Inverse() Extrinsics {
	var rt mat.Dense
	rt.CloneFrom(e.rotation().T())
	var t mat.VecDense
	t.MulVec(&rt, mat.NewVecDense(3, []float64{e.Translation.X, e.Translation.Y, e.Translation.Z}))
	return fromDense(&rt, r3.Vector{X: -t.AtVec(0), Y: -t.AtVec(1), Z: -t.AtVec(2)})
}

// Then returns the transform applying e first and next second.
func (e Extrinsics) Then(next Extrinsics) Extrinsics {
	var r mat.Dense
	r.Mul(next.rotation(), e.rotation())
	return fromDense(&r, next.Apply(e.Translation))
}

// Between returns the transform from frame src to frame dst when both are given relative to a
// common reference frame, i.e. refToSrc maps reference points into src.
func Between(refToSrc, refToDst Extrinsics) Extrinsics {
	return refToSrc.Inverse().Then(refToDst)
}
