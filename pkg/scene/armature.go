package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Bone is one bone of an armature at rest.
//
// Head and Tail are expressed in the parent bone's frame, relative to the
// parent's tail. For a root bone they are in armature space. Rotation is
// the bone's rest rotation relative to its parent.
type Bone struct {
	Name     string
	Parent   string
	Head     mgl32.Vec3
	Tail     mgl32.Vec3
	Rotation mgl32.Quat

	// Children is filled by Armature.Link in declaration order.
	Children []*Bone
}

// Armature is a skeleton placed in the scene by Transform.
type Armature struct {
	Name      string
	Transform mgl32.Mat4
	Bones     []*Bone
}

func (*Armature) Kind() Kind           { return KindArmature }
func (a *Armature) ObjectName() string { return a.Name }
func (*Armature) sealed()              {}

// World returns the armature transform, or identity when none is set.
func (a *Armature) World() mgl32.Mat4 { return orIdentity(a.Transform) }

// Link rebuilds the Children lists from the Parent names and returns the
// root bones. Roots and children keep declaration order.
func (a *Armature) Link() ([]*Bone, error) {
	byName := make(map[string]*Bone, len(a.Bones))
	for _, b := range a.Bones {
		if _, dup := byName[b.Name]; dup {
			return nil, fmt.Errorf("%w: %q in armature %q", ErrDuplicateBone, b.Name, a.Name)
		}
		byName[b.Name] = b
		b.Children = nil
	}

	var roots []*Bone
	for _, b := range a.Bones {
		if b.Parent == "" {
			roots = append(roots, b)
			continue
		}
		parent, ok := byName[b.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: parent %q of %q in armature %q", ErrUnknownBone, b.Parent, b.Name, a.Name)
		}
		parent.Children = append(parent.Children, b)
	}

	// Bones on a cycle are never reached from a root.
	reached := 0
	Walk(roots, func(*Bone, *Bone) { reached++ })
	if reached != len(a.Bones) {
		return nil, fmt.Errorf("%w in armature %q", ErrBoneCycle, a.Name)
	}
	return roots, nil
}

// Walk visits bones depth-first: each bone, then its children in order.
// parent is nil for roots.
func Walk(roots []*Bone, fn func(b, parent *Bone)) {
	var visit func(b, parent *Bone)
	visit = func(b, parent *Bone) {
		fn(b, parent)
		for _, c := range b.Children {
			visit(c, b)
		}
	}
	for _, r := range roots {
		visit(r, nil)
	}
}

// RestOffset returns the bone's rest position in its parent's frame: the
// parent's head-to-tail vector rotated back into the parent frame, plus the
// bone's own head. Roots return their head unchanged.
func RestOffset(b, parent *Bone) mgl32.Vec3 {
	if parent == nil {
		return b.Head
	}
	span := parent.Tail.Sub(parent.Head)
	return parent.RestRotation().Conjugate().Rotate(span).Add(b.Head)
}

// RestLocal returns the bone's rest transform relative to its parent.
func RestLocal(b, parent *Bone) mgl32.Mat4 {
	off := RestOffset(b, parent)
	return mgl32.Translate3D(off[0], off[1], off[2]).Mul4(b.RestRotation().Mat4())
}

// RestPose returns armature-space rest matrices for every bone reachable
// from roots.
func RestPose(roots []*Bone) map[string]mgl32.Mat4 {
	return composePose(roots, func(*Bone) mgl32.Mat4 { return mgl32.Ident4() })
}

// composePose accumulates armature-space matrices down the hierarchy. delta
// returns each bone's pose change applied after its rest transform.
func composePose(roots []*Bone, delta func(*Bone) mgl32.Mat4) map[string]mgl32.Mat4 {
	out := make(map[string]mgl32.Mat4)
	Walk(roots, func(b, parent *Bone) {
		local := RestLocal(b, parent).Mul4(delta(b))
		if parent != nil {
			local = out[parent.Name].Mul4(local)
		}
		out[b.Name] = local
	})
	return out
}

// RestRotation returns Rotation as a unit quaternion. An unset (zero)
// rotation is identity.
func (b *Bone) RestRotation() mgl32.Quat {
	return normalized(b.Rotation)
}

func normalized(q mgl32.Quat) mgl32.Quat {
	if q.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return q.Normalize()
}
