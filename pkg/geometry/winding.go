package geometry

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Geometry errors.
var (
	ErrIndexOverflow = errors.New("index does not fit in 16 bits")
	ErrMaterialIndex = errors.New("material index out of range")
	ErrVertexIndex   = errors.New("face references missing vertex")
)

// UnsupportedTopologyError reports a face that is not a triangle.
type UnsupportedTopologyError struct {
	Mesh     string
	Face     int
	Vertices int
}

func (e *UnsupportedTopologyError) Error() string {
	return fmt.Sprintf("mesh %q face %d has %d vertices, only triangles are supported", e.Mesh, e.Face, e.Vertices)
}

// DegenerateNormalError reports a face whose normal is perpendicular to its
// geometric normal, so no winding can be chosen.
type DegenerateNormalError struct {
	Mesh string
	Face int
}

func (e *DegenerateNormalError) Error() string {
	if e.Mesh == "" {
		return "face normal is perpendicular to the triangle"
	}
	return fmt.Sprintf("mesh %q face %d: face normal is perpendicular to the triangle", e.Mesh, e.Face)
}

// DiscardedFaceWarning records a face dropped because two of its vertices
// coincide.
type DiscardedFaceWarning struct {
	Mesh string
	Face int
}

func (w DiscardedFaceWarning) String() string {
	return fmt.Sprintf("mesh %q face %d discarded: repeated vertex position", w.Mesh, w.Face)
}

// ResolveWinding picks the order in which a triangle's corners are written.
// The geometric normal (v1-v0)x(v2-v1) is compared with the face normal:
// when they agree the corners are reversed (2,1,0), when they disagree the
// order is kept (0,1,2). The engine's frame has the opposite handedness.
func ResolveWinding(normal mgl32.Vec3, v [3]mgl32.Vec3) ([3]int, error) {
	geometric := v[1].Sub(v[0]).Cross(v[2].Sub(v[1]))
	dot := geometric.Dot(normal)
	switch {
	case dot > 0:
		return [3]int{2, 1, 0}, nil
	case dot < 0:
		return [3]int{0, 1, 2}, nil
	}
	return [3]int{}, &DegenerateNormalError{}
}

// IsLineFace reports whether two corners share a position.
func IsLineFace(v [3]mgl32.Vec3) bool {
	return v[0] == v[1] || v[1] == v[2] || v[0] == v[2]
}
