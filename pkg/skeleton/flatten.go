// Package skeleton converts bone hierarchies to the flat, parent-relative
// bone records of PSK and PSA files, and back.
package skeleton

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/scene"
)

// ErrDuplicateBone is returned when two flattened bones share a name.
var ErrDuplicateBone = errors.New("duplicate bone name")

// Armature is an armature after flattening. Bones, Parents and Indices are
// parallel and in depth-first order.
type Armature struct {
	Source  *scene.Armature
	Bones   []*scene.Bone
	Parents []*scene.Bone // nil for roots
	Indices []int         // record index in Context.Bones
}

// Context is the state of one export's armature pass. Records of every
// armature are appended to Bones; each is also stored in Registry.
type Context struct {
	Bones     []formats.Bone
	Registry  *Registry
	Armatures []*Armature
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{Registry: NewRegistry()}
}

// AddArmature links and flattens one armature.
func (c *Context) AddArmature(arm *scene.Armature) (*Armature, error) {
	roots, err := arm.Link()
	if err != nil {
		return nil, err
	}
	flat := &Armature{Source: arm}
	if err := c.flatten(roots, arm.World(), flat); err != nil {
		return nil, err
	}
	c.Armatures = append(c.Armatures, flat)
	return flat, nil
}

// Flatten appends the bones under roots depth-first, children in
// declaration order.
//
// A child bone stores its rest offset from the parent's tail and its rest
// rotation with the vector part negated. A root bone stores its head moved
// by the armature transform and the armature rotation times its own, not
// negated. Roots use their own index as parent index.
func (c *Context) Flatten(roots []*scene.Bone, armature mgl32.Mat4) ([]formats.Bone, error) {
	start := len(c.Bones)
	if err := c.flatten(roots, armature, &Armature{}); err != nil {
		return nil, err
	}
	return c.Bones[start:], nil
}

func (c *Context) flatten(roots []*scene.Bone, armature mgl32.Mat4, flat *Armature) error {
	armRot := Rotation(armature)

	var visit func(b, parent *scene.Bone, parentIndex int) error
	visit = func(b, parent *scene.Bone, parentIndex int) error {
		idx := len(c.Bones)
		rec := formats.Bone{
			Name:        b.Name,
			NumChildren: int32(len(b.Children)),
		}
		if parent == nil {
			rec.ParentIndex = int32(idx)
			rec.Position = mgl32.TransformCoordinate(b.Head, armature)
			rec.Orientation = formats.QuatFrom(armRot.Mul(b.RestRotation()).Normalize())
		} else {
			rec.ParentIndex = int32(parentIndex)
			rec.Position = scene.RestOffset(b, parent)
			rec.Orientation = Flip(b.RestRotation())
		}
		if err := c.Registry.Store(rec); err != nil {
			return err
		}
		c.Bones = append(c.Bones, rec)
		flat.Bones = append(flat.Bones, b)
		flat.Parents = append(flat.Parents, parent)
		flat.Indices = append(flat.Indices, idx)

		for _, child := range b.Children {
			if err := visit(child, b, idx); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		if err := visit(r, nil, 0); err != nil {
			return fmt.Errorf("flattening bone %q: %w", r.Name, err)
		}
	}
	return nil
}

// Flatten flattens one bone tree with a fresh context.
func Flatten(roots []*scene.Bone, armature mgl32.Mat4) ([]formats.Bone, error) {
	return NewContext().Flatten(roots, armature)
}
