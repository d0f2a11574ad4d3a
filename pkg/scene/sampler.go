package scene

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

type poseKey struct {
	frame       int
	translation mgl32.Vec3
	rotation    mgl32.Quat
}

// armatureTracks holds the authored pose keys of one armature, by action
// and bone, sorted by frame.
type armatureTracks struct {
	roots  []*Bone
	tracks map[string]map[string][]poseKey
}

func (t *armatureTracks) add(action string, frames ArmaturePoses) {
	if t.tracks == nil {
		t.tracks = make(map[string]map[string][]poseKey)
	}
	byBone := t.tracks[action]
	if byBone == nil {
		byBone = make(map[string][]poseKey)
		t.tracks[action] = byBone
	}
	for frame, bones := range frames {
		for bone, p := range bones {
			byBone[bone] = append(byBone[bone], poseKey{
				frame:       frame,
				translation: mgl32.Vec3(p.Translation),
				rotation:    quatXYZW(p.Rotation),
			})
		}
	}
	for _, keys := range byBone {
		sort.Slice(keys, func(i, j int) bool { return keys[i].frame < keys[j].frame })
	}
}

// documentSampler interpolates authored poses. Between two keys the
// translation is linear and the rotation spherical; outside the keyed range
// the nearest key holds. Bones without keys stay at rest.
type documentSampler struct {
	armatures map[string]*armatureTracks
}

func (s *documentSampler) Pose(armature, action string, frame int) (map[string]mgl32.Mat4, error) {
	t, ok := s.armatures[armature]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArmature, armature)
	}
	byBone := t.tracks[action]
	return composePose(t.roots, func(b *Bone) mgl32.Mat4 {
		return sampleKeys(byBone[b.Name], frame)
	}), nil
}

func sampleKeys(keys []poseKey, frame int) mgl32.Mat4 {
	if len(keys) == 0 {
		return mgl32.Ident4()
	}
	i := sort.Search(len(keys), func(i int) bool { return keys[i].frame > frame })
	var pos mgl32.Vec3
	var rot mgl32.Quat
	switch {
	case i == 0:
		pos, rot = keys[0].translation, keys[0].rotation
	case i == len(keys):
		last := keys[len(keys)-1]
		pos, rot = last.translation, last.rotation
	default:
		a, b := keys[i-1], keys[i]
		amount := float32(frame-a.frame) / float32(b.frame-a.frame)
		pos = a.translation.Add(b.translation.Sub(a.translation).Mul(amount))
		rot = mgl32.QuatSlerp(a.rotation, b.rotation, amount).Normalize()
	}
	return mgl32.Translate3D(pos[0], pos[1], pos[2]).Mul4(rot.Mat4())
}
