// Package anim samples actions over armatures into PSA animation records
// and keys.
package anim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/scene"
	"github.com/Faultbox/skelconv/pkg/skeleton"
)

// Animation errors.
var (
	ErrInvalidFrameRate = errors.New("frame rate must be positive")
	ErrMissingPose      = errors.New("pose sample missing bone")
)

// LastKeyTime is the time written on the last key of every action.
const LastKeyTime float32 = 1.0

// EmptyAnimationWarning records an action skipped for having no keyframes.
type EmptyAnimationWarning struct {
	Action string
}

func (w EmptyAnimationWarning) String() string {
	return fmt.Sprintf("action %q has no keyframes, skipped", w.Action)
}

// Result is the output of one sampling pass.
type Result struct {
	Animations []formats.AnimInfo
	Keys       []formats.Key
	Warnings   []EmptyAnimationWarning
}

// Builder samples actions against the armatures of one export. Bones are
// registered in the context's registry as they are first sampled, so a
// bone keeps its PSA index across actions.
type Builder struct {
	ctx       *skeleton.Context
	sampler   scene.PoseSampler
	frameRate float32
}

// NewBuilder returns a builder over the armatures already flattened into
// ctx.
func NewBuilder(ctx *skeleton.Context, sampler scene.PoseSampler, frameRate float32) (*Builder, error) {
	if frameRate <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrameRate, frameRate)
	}
	return &Builder{ctx: ctx, sampler: sampler, frameRate: frameRate}, nil
}

// trackBone is one bone in PSA order within an armature.
type trackBone struct {
	index  int
	bone   *scene.Bone
	parent *scene.Bone
}

// Sample resamples every action at each integer frame between its first
// and last keyframe. Keys are written per action, then per frame, then per
// armature, then per bone in registry order.
func (b *Builder) Sample(actions []scene.Action) (*Result, error) {
	res := &Result{}
	frameOffset := 0
	for _, action := range actions {
		first, last, ok := action.Range()
		if !ok {
			res.Warnings = append(res.Warnings, EmptyAnimationWarning{Action: action.Name})
			continue
		}

		tracks := b.order()
		touched := make(map[int]bool)
		frames := last - first + 1
		for frame := first; frame <= last; frame++ {
			time := float32(1) / b.frameRate
			if frame == last {
				time = LastKeyTime
			}
			for ai, arm := range b.ctx.Armatures {
				keys, err := b.sampleFrame(arm, tracks[ai], action.Name, frame, time)
				if err != nil {
					return nil, fmt.Errorf("action %q frame %d: %w", action.Name, frame, err)
				}
				res.Keys = append(res.Keys, keys...)
				for _, tb := range tracks[ai] {
					touched[tb.index] = true
				}
			}
		}

		res.Animations = append(res.Animations, formats.AnimInfo{
			Name:          action.Name,
			TotalBones:    int32(len(touched)),
			TrackTime:     float32(frames) / b.frameRate,
			AnimRate:      b.frameRate,
			FirstRawFrame: int32(frameOffset),
			NumRawFrames:  int32(frames),
		})
		frameOffset += frames
	}
	return res, nil
}

// order registers every bone of every armature and returns them sorted by
// registry index.
func (b *Builder) order() [][]trackBone {
	out := make([][]trackBone, len(b.ctx.Armatures))
	for ai, arm := range b.ctx.Armatures {
		bones := make([]trackBone, len(arm.Bones))
		for i, bone := range arm.Bones {
			bones[i] = trackBone{
				index:  b.ctx.Registry.Use(bone.Name),
				bone:   bone,
				parent: arm.Parents[i],
			}
		}
		sort.SliceStable(bones, func(i, j int) bool { return bones[i].index < bones[j].index })
		out[ai] = bones
	}
	return out
}

func (b *Builder) sampleFrame(arm *skeleton.Armature, bones []trackBone, action string, frame int, time float32) ([]formats.Key, error) {
	pose, err := b.sampler.Pose(arm.Source.Name, action, frame)
	if err != nil {
		return nil, err
	}
	world := arm.Source.World()

	keys := make([]formats.Key, 0, len(bones))
	for _, tb := range bones {
		m, ok := pose[tb.bone.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingPose, tb.bone.Name)
		}
		key := formats.Key{Time: time}
		if tb.parent == nil {
			pos, rot := skeleton.Decompose(world.Mul4(m))
			key.Position = pos
			key.Orientation = formats.QuatFrom(rot)
		} else {
			parentPose, ok := pose[tb.parent.Name]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrMissingPose, tb.parent.Name)
			}
			pos, rot := skeleton.Decompose(parentPose.Inv().Mul4(m))
			key.Position = pos
			key.Orientation = skeleton.Flip(rot)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Sample runs one sampling pass over the armatures in ctx.
func Sample(ctx *skeleton.Context, sampler scene.PoseSampler, actions []scene.Action, frameRate float32) (*Result, error) {
	b, err := NewBuilder(ctx, sampler, frameRate)
	if err != nil {
		return nil, err
	}
	return b.Sample(actions)
}

// identityPose is a sampler that holds every armature at rest.
type identityPose struct {
	ctx *skeleton.Context
}

// RestSampler returns a sampler that reports the rest pose of every
// armature in ctx for all actions and frames.
func RestSampler(ctx *skeleton.Context) scene.PoseSampler {
	return identityPose{ctx: ctx}
}

func (p identityPose) Pose(armature, _ string, _ int) (map[string]mgl32.Mat4, error) {
	for _, arm := range p.ctx.Armatures {
		if arm.Source.Name == armature {
			var roots []*scene.Bone
			for i, b := range arm.Bones {
				if arm.Parents[i] == nil {
					roots = append(roots, b)
				}
			}
			return scene.RestPose(roots), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", scene.ErrUnknownArmature, armature)
}
