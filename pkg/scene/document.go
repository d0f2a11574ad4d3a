package scene

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is wrapped by every Validate failure.
var ErrInvalidDocument = errors.New("invalid scene document")

// Document is the YAML form of a scene.
//
// Rotations are written as [x, y, z, w]. Poses are keyed by action, then
// armature, then frame, then bone, and hold each bone's change from rest in
// its own frame.
type Document struct {
	FrameRate float32                `yaml:"frame_rate"`
	Objects   []ObjectSpec           `yaml:"objects"`
	Actions   []ActionSpec           `yaml:"actions,omitempty"`
	Poses     map[string]ActionPoses `yaml:"poses,omitempty"`
}

// ActionPoses maps armature names to their authored frames.
type ActionPoses map[string]ArmaturePoses

// ArmaturePoses maps frame numbers to bone poses.
type ArmaturePoses map[int]FramePose

// FramePose maps bone names to poses.
type FramePose map[string]PoseSpec

// TransformSpec is a translation, rotation and scale applied in TRS order.
type TransformSpec struct {
	Translation [3]float32 `yaml:"translation,omitempty"`
	Rotation    [4]float32 `yaml:"rotation,omitempty"`
	Scale       [3]float32 `yaml:"scale,omitempty"`
}

// Mat4 returns the transform matrix. A zero rotation is identity and a zero
// scale is unit scale.
func (t TransformSpec) Mat4() mgl32.Mat4 {
	s := t.Scale
	if s == [3]float32{} {
		s = [3]float32{1, 1, 1}
	}
	return mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2]).
		Mul4(quatXYZW(t.Rotation).Mat4()).
		Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// ObjectSpec is a mesh or an armature, selected by Kind.
type ObjectSpec struct {
	Kind      string        `yaml:"kind"`
	Name      string        `yaml:"name"`
	Transform TransformSpec `yaml:"transform,omitempty"`

	// Mesh fields.
	Vertices     [][3]float32            `yaml:"vertices,omitempty"`
	Faces        []FaceSpec              `yaml:"faces,omitempty"`
	Materials    []string                `yaml:"materials,omitempty"`
	VertexGroups map[string][]WeightSpec `yaml:"vertex_groups,omitempty"`

	// Armature fields.
	Bones []BoneSpec `yaml:"bones,omitempty"`
}

// FaceSpec is one mesh face. A missing normal is computed from the first
// three vertices in counter-clockwise order.
type FaceSpec struct {
	Indices   []int        `yaml:"indices"`
	UV        [][2]float32 `yaml:"uv,omitempty"`
	Material  int          `yaml:"material,omitempty"`
	Normal    [3]float32   `yaml:"normal,omitempty"`
	Smoothing uint32       `yaml:"smoothing,omitempty"`
}

// WeightSpec is one vertex group entry.
type WeightSpec struct {
	Vertex int     `yaml:"vertex"`
	Weight float32 `yaml:"weight"`
}

// BoneSpec is one armature bone.
type BoneSpec struct {
	Name     string     `yaml:"name"`
	Parent   string     `yaml:"parent,omitempty"`
	Head     [3]float32 `yaml:"head"`
	Tail     [3]float32 `yaml:"tail"`
	Rotation [4]float32 `yaml:"rotation,omitempty"`
}

// ActionSpec names an action. Without keyframes, the frames authored under
// poses are used.
type ActionSpec struct {
	Name      string `yaml:"name"`
	Keyframes []int  `yaml:"keyframes,omitempty"`
}

// PoseSpec is a bone's change from its rest transform.
type PoseSpec struct {
	Translation [3]float32 `yaml:"translation,omitempty"`
	Rotation    [4]float32 `yaml:"rotation,omitempty"`
}

// ParseDocument decodes a YAML scene. Unknown fields are rejected.
func ParseDocument(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing scene document: %w", err)
	}
	return &doc, nil
}

// LoadDocument reads and decodes a YAML scene file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene document: %w", err)
	}
	return ParseDocument(data)
}

// Validate reports every problem in the document at once.
func (d *Document) Validate() error {
	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidDocument}, args...)...))
	}

	if d.FrameRate <= 0 {
		fail("frame_rate must be positive, got %v", d.FrameRate)
	}

	names := make(map[string]bool)
	armatureBones := make(map[string]map[string]bool)
	for i, obj := range d.Objects {
		if obj.Name == "" {
			fail("object %d has no name", i)
		} else if names[obj.Name] {
			fail("duplicate object name %q", obj.Name)
		}
		names[obj.Name] = true

		kind, err := ParseKind(obj.Kind)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("object %q: %w", obj.Name, err))
			continue
		}
		switch kind {
		case KindMesh:
			errs = multierr.Append(errs, validateMesh(obj))
		case KindArmature:
			bones := make(map[string]bool, len(obj.Bones))
			for _, b := range obj.Bones {
				bones[b.Name] = true
			}
			armatureBones[obj.Name] = bones
			if _, err := obj.armature().Link(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrInvalidDocument, err))
			}
		}
	}

	actions := make(map[string]bool)
	for i, a := range d.Actions {
		if a.Name == "" {
			fail("action %d has no name", i)
		} else if actions[a.Name] {
			fail("duplicate action name %q", a.Name)
		}
		actions[a.Name] = true
	}

	for _, action := range sortedKeys(d.Poses) {
		if !actions[action] {
			fail("poses for undeclared action %q", action)
		}
		for _, arm := range sortedKeys(d.Poses[action]) {
			bones, ok := armatureBones[arm]
			if !ok {
				fail("poses of action %q name unknown armature %q", action, arm)
				continue
			}
			for _, frame := range sortedKeys(d.Poses[action][arm]) {
				for _, bone := range sortedKeys(d.Poses[action][arm][frame]) {
					if !bones[bone] {
						fail("action %q frame %d poses unknown bone %q of %q", action, frame, bone, arm)
					}
				}
			}
		}
	}
	return errs
}

func validateMesh(obj ObjectSpec) error {
	var errs error
	n := len(obj.Vertices)
	for i, f := range obj.Faces {
		for _, idx := range f.Indices {
			if idx < 0 || idx >= n {
				errs = multierr.Append(errs, fmt.Errorf("%w: mesh %q face %d references vertex %d of %d", ErrInvalidDocument, obj.Name, i, idx, n))
			}
		}
		if len(f.UV) != 0 && len(f.UV) != len(f.Indices) {
			errs = multierr.Append(errs, fmt.Errorf("%w: mesh %q face %d has %d UVs for %d vertices", ErrInvalidDocument, obj.Name, i, len(f.UV), len(f.Indices)))
		}
		if f.Material < 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: mesh %q face %d has negative material", ErrInvalidDocument, obj.Name, i))
		}
	}
	for _, group := range sortedKeys(obj.VertexGroups) {
		for _, w := range obj.VertexGroups[group] {
			if w.Vertex < 0 || w.Vertex >= n {
				errs = multierr.Append(errs, fmt.Errorf("%w: mesh %q group %q references vertex %d of %d", ErrInvalidDocument, obj.Name, group, w.Vertex, n))
			}
		}
	}
	return errs
}

// Scene validates the document and builds the scene it describes. The
// document itself serves as the pose sampler.
func (d *Document) Scene() (*Scene, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	sampler := &documentSampler{armatures: make(map[string]*armatureTracks)}
	s := &Scene{FrameRate: d.FrameRate, Poses: sampler}
	for _, obj := range d.Objects {
		switch Kind(obj.Kind) {
		case KindMesh:
			s.Objects = append(s.Objects, obj.mesh())
		case KindArmature:
			arm := obj.armature()
			roots, err := arm.Link()
			if err != nil {
				return nil, err
			}
			sampler.armatures[arm.Name] = &armatureTracks{roots: roots}
			s.Objects = append(s.Objects, arm)
		}
	}

	for _, a := range d.Actions {
		keyframes := a.Keyframes
		if len(keyframes) == 0 {
			keyframes = d.posedFrames(a.Name)
		}
		s.Actions = append(s.Actions, Action{Name: a.Name, Keyframes: keyframes})
	}

	for action, byArmature := range d.Poses {
		for arm, frames := range byArmature {
			sampler.armatures[arm].add(action, frames)
		}
	}
	return s, nil
}

// posedFrames returns the sorted, distinct frames authored for an action
// across all armatures.
func (d *Document) posedFrames(action string) []int {
	seen := make(map[int]bool)
	var frames []int
	for _, byFrame := range d.Poses[action] {
		for f := range byFrame {
			if !seen[f] {
				seen[f] = true
				frames = append(frames, f)
			}
		}
	}
	sort.Ints(frames)
	return frames
}

func (o ObjectSpec) mesh() *Mesh {
	m := &Mesh{
		Name:      o.Name,
		Transform: o.Transform.Mat4(),
		Materials: o.Materials,
	}
	for _, v := range o.Vertices {
		m.Vertices = append(m.Vertices, mgl32.Vec3(v))
	}
	for _, f := range o.Faces {
		face := Face{
			Indices:         f.Indices,
			UV:              f.UV,
			Material:        f.Material,
			Normal:          mgl32.Vec3(f.Normal),
			SmoothingGroups: f.Smoothing,
		}
		if face.Normal == (mgl32.Vec3{}) && len(f.Indices) >= 3 {
			face.Normal = FaceNormal(m.Vertices[f.Indices[0]], m.Vertices[f.Indices[1]], m.Vertices[f.Indices[2]])
		}
		m.Faces = append(m.Faces, face)
	}
	if len(o.VertexGroups) > 0 {
		m.VertexGroups = make(map[string][]VertexWeight, len(o.VertexGroups))
		for name, weights := range o.VertexGroups {
			for _, w := range weights {
				m.VertexGroups[name] = append(m.VertexGroups[name], VertexWeight{Vertex: w.Vertex, Weight: w.Weight})
			}
		}
	}
	return m
}

func (o ObjectSpec) armature() *Armature {
	a := &Armature{Name: o.Name, Transform: o.Transform.Mat4()}
	for _, b := range o.Bones {
		a.Bones = append(a.Bones, &Bone{
			Name:     b.Name,
			Parent:   b.Parent,
			Head:     mgl32.Vec3(b.Head),
			Tail:     mgl32.Vec3(b.Tail),
			Rotation: quatXYZW(b.Rotation),
		})
	}
	return a
}

// FaceNormal returns the unit normal of a counter-clockwise triangle, or
// the zero vector for a degenerate one.
func FaceNormal(a, b, c mgl32.Vec3) mgl32.Vec3 {
	n := b.Sub(a).Cross(c.Sub(a))
	if n.Len() == 0 {
		return n
	}
	return n.Normalize()
}

// quatXYZW converts [x, y, z, w] to a unit quaternion. Zero is identity.
func quatXYZW(v [4]float32) mgl32.Quat {
	return normalized(mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}})
}

func sortedKeys[K int | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
