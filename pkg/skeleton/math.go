package skeleton

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/formats"
)

// Decompose splits an affine matrix into translation and a unit rotation.
// Scale is removed by normalizing the basis columns first.
func Decompose(m mgl32.Mat4) (mgl32.Vec3, mgl32.Quat) {
	return m.Col(3).Vec3(), Rotation(m)
}

// Rotation returns the unit rotation of an affine matrix, ignoring
// translation and scale.
func Rotation(m mgl32.Mat4) mgl32.Quat {
	var cols [3]mgl32.Vec4
	for i := range cols {
		c := m.Col(i).Vec3()
		if l := c.Len(); l > 0 {
			c = c.Mul(1 / l)
		}
		cols[i] = c.Vec4(0)
	}
	basis := mgl32.Mat4FromCols(cols[0], cols[1], cols[2], mgl32.Vec4{0, 0, 0, 1})
	q := mgl32.Mat4ToQuat(basis)
	if q.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return q.Normalize()
}

// Flip converts a rotation to the engine's handedness by negating its
// vector part. Root bones are written without it.
func Flip(q mgl32.Quat) formats.Quat {
	return formats.Quat{X: -q.V[0], Y: -q.V[1], Z: -q.V[2], W: q.W}
}
