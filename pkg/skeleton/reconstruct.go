package skeleton

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/chunk"
	"github.com/Faultbox/skelconv/pkg/formats"
)

// Joint is a bone rebuilt from its record, with accumulated transforms.
type Joint struct {
	Name   string
	Parent int // -1 for roots

	// Head and Tail are the display segment of the bone.
	Head mgl32.Vec3
	Tail mgl32.Vec3

	// Position and Orientation are in model space.
	Position    mgl32.Vec3
	Orientation mgl32.Quat
}

// IsRoot reports whether record i of a bone list is a root: the first
// record, a record that is its own parent, or one with a negative parent.
func IsRoot(i int, b formats.Bone) bool {
	return i == 0 || int(b.ParentIndex) == i || b.ParentIndex < 0
}

// Reconstruct walks the records in stored order and composes each bone
// with its already rebuilt parent.
//
// Roots keep their stored position and have the Y component of their
// orientation negated. Children have their orientation conjugated; their
// position is the parent's plus the stored offset rotated by the parent.
func Reconstruct(bones []formats.Bone) ([]Joint, error) {
	joints := make([]Joint, len(bones))
	for i, b := range bones {
		if IsRoot(i, b) {
			pos, q := LocalTransform(true, b.Position, b.Orientation)
			joints[i] = Joint{
				Name:        b.Name,
				Parent:      -1,
				Tail:        pos,
				Position:    pos,
				Orientation: q,
			}
			continue
		}

		p := int(b.ParentIndex)
		if p >= i {
			return nil, &chunk.FormatError{
				Chunk: "REFSKELT",
				Err:   fmt.Errorf("bone %d (%s) has parent %d, parents must come first", i, b.Name, p),
			}
		}
		parent := joints[p]
		local, q := LocalTransform(false, b.Position, b.Orientation)
		pos := parent.Position.Add(parent.Orientation.Rotate(local))
		joints[i] = Joint{
			Name:        b.Name,
			Parent:      p,
			Head:        parent.Position,
			Tail:        pos,
			Position:    pos,
			Orientation: parent.Orientation.Mul(q),
		}
	}
	return joints, nil
}

// LocalTransform converts a stored bone or key transform to one relative
// to the parent bone. Bone records and animation keys share the
// convention: a root has the Y component of its orientation negated, a
// child has its orientation conjugated.
func LocalTransform(root bool, pos mgl32.Vec3, stored formats.Quat) (mgl32.Vec3, mgl32.Quat) {
	q := stored.Mgl()
	if root {
		q.V[1] = -q.V[1]
		return pos, q
	}
	return pos, q.Conjugate()
}

// InfluenceGroup is the set of weights one bone has on the mesh.
type InfluenceGroup struct {
	Bone    int
	Name    string
	Weights []formats.Influence
}

// GroupInfluences gathers influences by bone. Groups appear in the order
// their bone is first referenced. Bones without influences get no group.
// Influences naming a bone outside the list are returned separately.
func GroupInfluences(bones []formats.Bone, influences []formats.Influence) ([]InfluenceGroup, []formats.Influence) {
	var groups []InfluenceGroup
	at := make(map[int32]int)
	var orphans []formats.Influence
	for _, inf := range influences {
		if inf.BoneIndex < 0 || int(inf.BoneIndex) >= len(bones) {
			orphans = append(orphans, inf)
			continue
		}
		g, ok := at[inf.BoneIndex]
		if !ok {
			g = len(groups)
			at[inf.BoneIndex] = g
			groups = append(groups, InfluenceGroup{Bone: int(inf.BoneIndex), Name: bones[inf.BoneIndex].Name})
		}
		groups[g].Weights = append(groups[g].Weights, inf)
	}
	return groups, orphans
}
