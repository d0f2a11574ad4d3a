package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/scene"
)

// Limits imposed by the record layouts.
const (
	MaxIndex    = math.MaxUint16
	MaxMaterial = math.MaxUint8
)

// Options controls the mesh pass.
type Options struct {
	// FlipV writes 1-v instead of v. The engine's texture origin is at the
	// top left.
	FlipV bool
}

// DefaultOptions returns the options used by the exporter.
func DefaultOptions() Options {
	return Options{FlipV: true}
}

// Influence is one vertex group entry mapped onto the point table.
type Influence struct {
	Point  int
	Weight float32
}

// Builder accumulates the geometry of every mesh in one export. A Builder
// that returned an error must be discarded.
type Builder struct {
	opts      Options
	points    Table[formats.Point]
	wedges    Table[formats.Wedge]
	faces     []formats.Triangle
	materials []string
	groups    map[string][]Influence
	groupSeen map[string]map[int]int

	// Discarded lists faces dropped because two corners coincide.
	Discarded []DiscardedFaceWarning
}

// NewBuilder returns an empty builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:      opts,
		groups:    make(map[string][]Influence),
		groupSeen: make(map[string]map[int]int),
	}
}

// AddMesh runs the mesh pass over m. Corner positions are transformed by
// the mesh transform before interning; winding is resolved in object space
// where the face normals live.
func (b *Builder) AddMesh(m *scene.Mesh) error {
	world := m.World()
	vertexPoint := make(map[int]int)

	for fi, f := range m.Faces {
		if len(f.Indices) != 3 {
			return &UnsupportedTopologyError{Mesh: m.Name, Face: fi, Vertices: len(f.Indices)}
		}
		if f.Material < 0 || f.Material > MaxMaterial {
			return fmt.Errorf("%w: mesh %q face %d uses material %d", ErrMaterialIndex, m.Name, fi, f.Material)
		}

		var corners [3]mgl32.Vec3
		for k, idx := range f.Indices {
			if idx < 0 || idx >= len(m.Vertices) {
				return fmt.Errorf("%w: mesh %q face %d vertex %d", ErrVertexIndex, m.Name, fi, idx)
			}
			corners[k] = m.Vertices[idx]
		}

		if IsLineFace(corners) {
			b.Discarded = append(b.Discarded, DiscardedFaceWarning{Mesh: m.Name, Face: fi})
			continue
		}

		order, err := ResolveWinding(f.Normal, corners)
		if err != nil {
			var dn *DegenerateNormalError
			if errors.As(err, &dn) {
				dn.Mesh, dn.Face = m.Name, fi
			}
			return err
		}

		tri := formats.Triangle{
			MatIndex:        uint8(f.Material),
			SmoothingGroups: f.SmoothingGroups,
		}
		for j, k := range order {
			pi := b.points.Intern(mgl32.TransformCoordinate(corners[k], world))
			if pi > MaxIndex {
				return fmt.Errorf("%w: mesh %q needs more than %d points", ErrIndexOverflow, m.Name, MaxIndex+1)
			}
			vertexPoint[f.Indices[k]] = pi

			var uv [2]float32
			if k < len(f.UV) {
				uv = f.UV[k]
			}
			if b.opts.FlipV {
				uv[1] = 1 - uv[1]
			}
			wi := b.wedges.Intern(formats.Wedge{
				PointIndex: uint16(pi),
				U:          uv[0],
				V:          uv[1],
				MatIndex:   uint8(f.Material),
			})
			if wi > MaxIndex {
				return fmt.Errorf("%w: mesh %q needs more than %d wedges", ErrIndexOverflow, m.Name, MaxIndex+1)
			}
			tri.WedgeIndex[j] = uint16(wi)
		}
		b.faces = append(b.faces, tri)
		b.useMaterial(f.Material, m.Materials)
	}

	b.addGroups(m, vertexPoint)
	return nil
}

// useMaterial makes sure the material table covers index. The first mesh
// that names a slot decides its name.
func (b *Builder) useMaterial(index int, names []string) {
	for len(b.materials) <= index {
		b.materials = append(b.materials, "")
	}
	if b.materials[index] == "" && index < len(names) {
		b.materials[index] = names[index]
	}
}

// addGroups maps the mesh's vertex groups onto point indices. Vertices no
// exported face uses have no point and are skipped, as are weights <= 0.
// Vertices that collapsed into one point keep the largest weight.
func (b *Builder) addGroups(m *scene.Mesh, vertexPoint map[int]int) {
	for _, name := range m.GroupNames() {
		seen := b.groupSeen[name]
		if seen == nil {
			seen = make(map[int]int)
			b.groupSeen[name] = seen
		}
		for _, w := range m.VertexGroups[name] {
			if w.Weight <= 0 {
				continue
			}
			pi, ok := vertexPoint[w.Vertex]
			if !ok {
				continue
			}
			if at, dup := seen[pi]; dup {
				if w.Weight > b.groups[name][at].Weight {
					b.groups[name][at].Weight = w.Weight
				}
				continue
			}
			seen[pi] = len(b.groups[name])
			b.groups[name] = append(b.groups[name], Influence{Point: pi, Weight: w.Weight})
		}
	}
}

// VertexGroups returns the accumulated vertex groups by name.
func (b *Builder) VertexGroups() map[string][]Influence {
	return b.groups
}

// Points returns the number of distinct points.
func (b *Builder) Points() int { return b.points.Len() }

// Wedges returns the number of distinct wedges.
func (b *Builder) Wedges() int { return b.wedges.Len() }

// Faces returns the number of triangles kept.
func (b *Builder) Faces() int { return len(b.faces) }

// Fill copies the geometry into psk. Material slots no mesh named are
// called Mat<index>.
func (b *Builder) Fill(psk *formats.PSK) {
	psk.Points = append([]formats.Point(nil), b.points.Items()...)
	psk.Wedges = append([]formats.Wedge(nil), b.wedges.Items()...)
	psk.Faces = append([]formats.Triangle(nil), b.faces...)
	psk.Materials = make([]formats.Material, len(b.materials))
	for i, name := range b.materials {
		if name == "" {
			name = fmt.Sprintf("Mat%d", i)
		}
		psk.Materials[i] = formats.Material{Name: name}
	}
}
