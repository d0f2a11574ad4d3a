// Package scene models the objects an exporter consumes: triangulated
// meshes, armatures with bone hierarchies, actions and sampled poses.
//
// Only two object kinds exist. Any other kind is rejected when a scene is
// built, so downstream code never inspects type names.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Scene errors.
var (
	ErrUnsupportedObjectKind = errors.New("unsupported object kind")
	ErrUnknownBone           = errors.New("unknown bone")
	ErrDuplicateBone         = errors.New("duplicate bone name")
	ErrBoneCycle             = errors.New("bone hierarchy has a cycle")
	ErrUnknownArmature       = errors.New("unknown armature")
)

// Kind identifies the variant held by an Object.
type Kind string

// Object kinds.
const (
	KindMesh     Kind = "mesh"
	KindArmature Kind = "armature"
)

// ParseKind validates an object kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMesh, KindArmature:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedObjectKind, s)
}

// Object is either a *Mesh or an *Armature.
type Object interface {
	Kind() Kind
	ObjectName() string
	sealed()
}

// VertexWeight assigns a weight to one mesh vertex.
type VertexWeight struct {
	Vertex int
	Weight float32
}

// Face is one polygon of a mesh. UV holds one coordinate per index and may
// be empty. Normal is the face normal in object space.
type Face struct {
	Indices         []int
	UV              [][2]float32
	Material        int
	Normal          mgl32.Vec3
	SmoothingGroups uint32
}

// Mesh is a polygon mesh in object space.
type Mesh struct {
	Name         string
	Transform    mgl32.Mat4
	Vertices     []mgl32.Vec3
	Faces        []Face
	Materials    []string
	VertexGroups map[string][]VertexWeight
}

func (*Mesh) Kind() Kind           { return KindMesh }
func (m *Mesh) ObjectName() string { return m.Name }
func (*Mesh) sealed()              {}

// World returns the object transform, or identity when none is set.
func (m *Mesh) World() mgl32.Mat4 { return orIdentity(m.Transform) }

// GroupNames returns the vertex group names in sorted order.
func (m *Mesh) GroupNames() []string {
	names := make([]string, 0, len(m.VertexGroups))
	for name := range m.VertexGroups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Action is a named clip with its authored keyframe numbers.
type Action struct {
	Name      string
	Keyframes []int
}

// Range returns the first and last authored frame. ok is false when the
// action has no keyframes.
func (a Action) Range() (first, last int, ok bool) {
	if len(a.Keyframes) == 0 {
		return 0, 0, false
	}
	first, last = a.Keyframes[0], a.Keyframes[0]
	for _, f := range a.Keyframes[1:] {
		first = min(first, f)
		last = max(last, f)
	}
	return first, last, true
}

// PoseSampler returns armature-space pose matrices for every bone of an
// armature at one frame of an action.
type PoseSampler interface {
	Pose(armature, action string, frame int) (map[string]mgl32.Mat4, error)
}

// Scene is everything one export reads.
type Scene struct {
	FrameRate float32
	Objects   []Object
	Actions   []Action
	Poses     PoseSampler
}

// Meshes returns the mesh objects in declaration order.
func (s *Scene) Meshes() []*Mesh {
	var out []*Mesh
	for _, obj := range s.Objects {
		if m, ok := obj.(*Mesh); ok {
			out = append(out, m)
		}
	}
	return out
}

// Armatures returns the armature objects in declaration order.
func (s *Scene) Armatures() []*Armature {
	var out []*Armature
	for _, obj := range s.Objects {
		if a, ok := obj.(*Armature); ok {
			out = append(out, a)
		}
	}
	return out
}

// orIdentity treats the zero matrix as an unset transform.
func orIdentity(m mgl32.Mat4) mgl32.Mat4 {
	if m == (mgl32.Mat4{}) {
		return mgl32.Ident4()
	}
	return m
}
