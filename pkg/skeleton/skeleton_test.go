package skeleton

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/chunk"
	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/geometry"
	"github.com/Faultbox/skelconv/pkg/scene"
)

// chain is root -> mid -> tip, each one unit long along +Z.
func chain() *scene.Armature {
	up := mgl32.Vec3{0, 0, 1}
	return &scene.Armature{
		Name: "rig",
		Bones: []*scene.Bone{
			{Name: "root", Tail: up, Rotation: mgl32.QuatIdent()},
			{Name: "mid", Parent: "root", Tail: up, Rotation: mgl32.QuatIdent()},
			{Name: "tip", Parent: "mid", Tail: up, Rotation: mgl32.QuatIdent()},
		},
	}
}

func TestFlatten_Chain(t *testing.T) {
	ctx := NewContext()
	flat, err := ctx.AddArmature(chain())
	if err != nil {
		t.Fatalf("AddArmature: %v", err)
	}
	bones := ctx.Bones
	if len(bones) != 3 || len(flat.Bones) != 3 {
		t.Fatalf("expected 3 bones, got %d", len(bones))
	}

	wantParent := []int32{0, 0, 1}
	for i, b := range bones {
		if b.ParentIndex != wantParent[i] {
			t.Errorf("bone %d parent %d, want %d", i, b.ParentIndex, wantParent[i])
		}
	}
	// mid starts where root ends.
	if bones[1].Position != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("mid position %v, want [0 0 1]", bones[1].Position)
	}
	if bones[0].Position != (mgl32.Vec3{}) {
		t.Errorf("root position %v", bones[0].Position)
	}
	if bones[0].NumChildren != 1 || bones[2].NumChildren != 0 {
		t.Errorf("child counts: %d, %d", bones[0].NumChildren, bones[2].NumChildren)
	}
	for i, b := range bones {
		if b.Orientation != (formats.Quat{W: 1}) {
			t.Errorf("bone %d orientation %+v, want identity", i, b.Orientation)
		}
	}
	if flat.Parents[0] != nil || flat.Parents[2].Name != "mid" {
		t.Errorf("flattened parents wrong")
	}
}

func TestFlatten_ParentsPrecedeChildren(t *testing.T) {
	arm := &scene.Armature{
		Name: "tree",
		Bones: []*scene.Bone{
			{Name: "hips"},
			{Name: "leg.l", Parent: "hips"},
			{Name: "spine", Parent: "hips"},
			{Name: "foot.l", Parent: "leg.l"},
			{Name: "prop"},
			{Name: "head", Parent: "spine"},
			{Name: "prop.tip", Parent: "prop"},
		},
	}
	ctx := NewContext()
	if _, err := ctx.AddArmature(arm); err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"hips", "leg.l", "foot.l", "spine", "head", "prop", "prop.tip"}
	roots := 0
	for i, b := range ctx.Bones {
		if b.Name != wantOrder[i] {
			t.Errorf("position %d: %s, want %s", i, b.Name, wantOrder[i])
		}
		p := int(b.ParentIndex)
		if p == i {
			roots++
			continue
		}
		if p < 0 || p >= i {
			t.Errorf("bone %d (%s) has parent %d", i, b.Name, p)
		}
	}
	if roots != 2 {
		t.Errorf("expected 2 self-parented roots, got %d", roots)
	}
}

func TestFlatten_RootUsesArmatureTransform(t *testing.T) {
	turn := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	bend := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{1, 0, 0})
	armature := mgl32.Translate3D(1, 2, 3).Mul4(turn.Mat4())

	roots := []*scene.Bone{{
		Name:     "root",
		Head:     mgl32.Vec3{1, 0, 0},
		Tail:     mgl32.Vec3{1, 0, 1},
		Rotation: mgl32.QuatIdent(),
		Children: []*scene.Bone{{Name: "child", Rotation: bend}},
	}}

	bones, err := Flatten(roots, armature)
	if err != nil {
		t.Fatal(err)
	}

	if !bones[0].Position.ApproxEqualThreshold(mgl32.Vec3{1, 3, 3}, 1e-5) {
		t.Errorf("root position %v, want [1 3 3]", bones[0].Position)
	}
	// Roots carry the armature rotation unflipped.
	if !bones[0].Orientation.Mgl().ApproxEqualThreshold(turn, 1e-5) {
		t.Errorf("root orientation %+v, want %v", bones[0].Orientation, turn)
	}
	// Children are flipped and ignore the armature.
	want := formats.Quat{X: -bend.V[0], Y: -bend.V[1], Z: -bend.V[2], W: bend.W}
	got := bones[1].Orientation
	if !got.Mgl().ApproxEqualThreshold(want.Mgl(), 1e-6) {
		t.Errorf("child orientation %+v, want %+v", got, want)
	}
	if !bones[1].Position.ApproxEqual(mgl32.Vec3{0, 0, 1}) {
		t.Errorf("child position %v, want [0 0 1]", bones[1].Position)
	}
}

func TestContext_DuplicateBoneAcrossArmatures(t *testing.T) {
	ctx := NewContext()
	if _, err := ctx.AddArmature(chain()); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.AddArmature(chain()); !errors.Is(err, ErrDuplicateBone) {
		t.Errorf("expected ErrDuplicateBone, got %v", err)
	}
}

func TestRegistry_FirstUseOrder(t *testing.T) {
	ctx := NewContext()
	if _, err := ctx.AddArmature(chain()); err != nil {
		t.Fatal(err)
	}
	reg := ctx.Registry

	if len(reg.Bones()) != 0 {
		t.Fatal("stored bones must not be listed before use")
	}
	if reg.Use("tip") != 0 || reg.Use("root") != 1 || reg.Use("tip") != 0 {
		t.Error("indices must follow first use and stay stable")
	}
	if _, ok := reg.Index("mid"); ok {
		t.Error("mid was never used")
	}

	i := reg.Use("ghost")
	b := reg.Bones()[i]
	if b.Flags != formats.BoneFlagSynthesized || b.Orientation.W != 1 || b.Position != (mgl32.Vec3{}) {
		t.Errorf("synthesized bone: %+v", b)
	}
	if reg.Bones()[0].Flags != 0 || reg.Bones()[0].ParentIndex != 1 {
		t.Errorf("stored bone changed: %+v", reg.Bones()[0])
	}
	if reg.Synthesized() != 1 {
		t.Errorf("expected 1 synthesized bone, got %d", reg.Synthesized())
	}
}

func TestInfluences_Completeness(t *testing.T) {
	bones := []formats.Bone{{Name: "root"}, {Name: "mid"}, {Name: "tip"}}
	groups := map[string][]geometry.Influence{
		"tip":   {{Point: 4, Weight: 0.5}, {Point: 1, Weight: 1}},
		"root":  {{Point: 0, Weight: 1}},
		"cloth": {{Point: 2, Weight: 1}},
	}

	out, unmatched := Influences(bones, groups)
	if len(out) != 3 {
		t.Fatalf("expected 3 influences, got %d", len(out))
	}

	type pair struct{ point, bone int32 }
	seen := make(map[pair]int)
	for _, inf := range out {
		seen[pair{inf.PointIndex, inf.BoneIndex}]++
	}
	for _, want := range []pair{{0, 0}, {4, 2}, {1, 2}} {
		if seen[want] != 1 {
			t.Errorf("pair %v appears %d times", want, seen[want])
		}
	}
	if out[0].BoneIndex != 0 {
		t.Errorf("influences not in bone order: %+v", out)
	}
	if len(unmatched) != 1 || unmatched[0] != "cloth" {
		t.Errorf("unmatched: %v", unmatched)
	}
}

func TestReconstruct_Chain(t *testing.T) {
	bones, err := Flatten(mustLink(t, chain()), mgl32.Ident4())
	if err != nil {
		t.Fatal(err)
	}
	joints, err := Reconstruct(bones)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	for i, z := range []float32{0, 1, 2} {
		if !joints[i].Position.ApproxEqual(mgl32.Vec3{0, 0, z}) {
			t.Errorf("joint %d at %v, want z=%v", i, joints[i].Position, z)
		}
	}
	if joints[0].Parent != -1 || joints[1].Parent != 0 || joints[2].Parent != 1 {
		t.Errorf("parents: %d %d %d", joints[0].Parent, joints[1].Parent, joints[2].Parent)
	}
	if joints[2].Head != joints[1].Position || joints[2].Tail != joints[2].Position {
		t.Errorf("tip segment %v -> %v", joints[2].Head, joints[2].Tail)
	}
}

func TestReconstruct_Orientation(t *testing.T) {
	q := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	bones := []formats.Bone{
		{Name: "root", Orientation: formats.QuatFrom(q)},
		{Name: "child", ParentIndex: 0, Orientation: formats.QuatFrom(q), Position: mgl32.Vec3{1, 0, 0}},
	}
	joints, err := Reconstruct(bones)
	if err != nil {
		t.Fatal(err)
	}

	// Root: Y negated, a -90 degree turn about Y.
	rootQ := mgl32.QuatRotate(mgl32.DegToRad(-90), mgl32.Vec3{0, 1, 0})
	if !joints[0].Orientation.ApproxEqualThreshold(rootQ, 1e-6) {
		t.Errorf("root orientation %v, want %v", joints[0].Orientation, rootQ)
	}
	// Child offset is rotated by the root, and the conjugated child rotation
	// adds another -90 degrees.
	if !joints[1].Position.ApproxEqualThreshold(rootQ.Rotate(mgl32.Vec3{1, 0, 0}), 1e-6) {
		t.Errorf("child position %v", joints[1].Position)
	}
	childQ := mgl32.QuatRotate(mgl32.DegToRad(-180), mgl32.Vec3{0, 1, 0})
	if !joints[1].Orientation.ApproxEqualThreshold(childQ, 1e-5) {
		t.Errorf("child orientation %v, want %v", joints[1].Orientation, childQ)
	}
}

func TestLocalTransform(t *testing.T) {
	stored := formats.Quat{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9}
	pos := mgl32.Vec3{1, 2, 3}

	tests := []struct {
		name string
		root bool
		want mgl32.Quat
	}{
		{"root negates y", true, mgl32.Quat{W: 0.9, V: mgl32.Vec3{0.1, -0.2, 0.3}}},
		{"child conjugates", false, mgl32.Quat{W: 0.9, V: mgl32.Vec3{-0.1, -0.2, -0.3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPos, gotQ := LocalTransform(tt.root, pos, stored)
			if gotPos != pos {
				t.Errorf("position %v, want %v", gotPos, pos)
			}
			if gotQ != tt.want {
				t.Errorf("orientation %v, want %v", gotQ, tt.want)
			}
		})
	}
}

func TestReconstruct_ParentAfterChild(t *testing.T) {
	bones := []formats.Bone{
		{Name: "root", Orientation: formats.Quat{W: 1}},
		{Name: "a", ParentIndex: 2, Orientation: formats.Quat{W: 1}},
		{Name: "b", ParentIndex: 0, Orientation: formats.Quat{W: 1}},
	}
	_, err := Reconstruct(bones)
	var fe *chunk.FormatError
	if !errors.As(err, &fe) {
		t.Errorf("expected FormatError, got %v", err)
	}
}

func TestGroupInfluences(t *testing.T) {
	bones := []formats.Bone{{Name: "root"}, {Name: "arm"}, {Name: "hand"}}
	influences := []formats.Influence{
		{Weight: 1, PointIndex: 0, BoneIndex: 2},
		{Weight: 1, PointIndex: 1, BoneIndex: 0},
		{Weight: 0.5, PointIndex: 2, BoneIndex: 2},
		{Weight: 1, PointIndex: 3, BoneIndex: 7},
	}

	groups, orphans := GroupInfluences(bones, influences)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Name != "hand" || len(groups[0].Weights) != 2 {
		t.Errorf("first group should be hand with 2 weights: %+v", groups[0])
	}
	if groups[1].Bone != 0 {
		t.Errorf("second group should be root: %+v", groups[1])
	}
	if len(orphans) != 1 || orphans[0].BoneIndex != 7 {
		t.Errorf("orphans: %+v", orphans)
	}
}

func TestDecompose(t *testing.T) {
	q := mgl32.QuatRotate(mgl32.DegToRad(30), mgl32.Vec3{1, 1, 0}.Normalize())
	m := mgl32.Translate3D(4, 5, 6).Mul4(q.Mat4()).Mul4(mgl32.Scale3D(2, 3, 4))

	pos, rot := Decompose(m)
	if pos != (mgl32.Vec3{4, 5, 6}) {
		t.Errorf("translation %v", pos)
	}
	if !rot.ApproxEqualThreshold(q, 1e-5) && !rot.ApproxEqualThreshold(q.Scale(-1), 1e-5) {
		t.Errorf("rotation %v, want %v", rot, q)
	}
}

func mustLink(t *testing.T, arm *scene.Armature) []*scene.Bone {
	t.Helper()
	roots, err := arm.Link()
	if err != nil {
		t.Fatal(err)
	}
	return roots
}
