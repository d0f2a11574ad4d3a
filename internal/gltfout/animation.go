package gltfout

import (
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/skelconv/internal/logger"
	"github.com/Faultbox/skelconv/internal/pipeline"
	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/skeleton"
)

// DefaultFrameRate times the keys of an action that records no rate.
const DefaultFrameRate = 30

// addAnimations appends one glTF animation per action of the model's
// animation file. Each bone track becomes a translation and a rotation
// channel on the joint node of the same name; tracks for bones the mesh
// does not have are skipped.
func addAnimations(doc *gltf.Document, model *pipeline.ImportedModel, jointNodes []uint32) error {
	psa := model.Animation
	if psa == nil || len(jointNodes) == 0 {
		return nil
	}
	byName := make(map[string]int, len(model.Joints))
	for i, j := range model.Joints {
		if _, ok := byName[j.Name]; !ok {
			byName[j.Name] = i
		}
	}

	unmatched := make(map[string]bool)
	for i, info := range psa.Animations {
		keys, err := psa.ActionKeys(i)
		if err != nil {
			return fmt.Errorf("animation %q: %w", info.Name, err)
		}
		bones := int(info.TotalBones)
		if bones == 0 || len(keys) == 0 {
			continue
		}
		frames := len(keys) / bones

		anim := &gltf.Animation{Name: info.Name}
		input := writeTimes(doc, frameTimes(info, frames))
		for b := 0; b < bones && b < len(psa.Bones); b++ {
			joint, ok := byName[psa.Bones[b].Name]
			if !ok {
				unmatched[psa.Bones[b].Name] = true
				continue
			}
			root := model.Joints[joint].Parent < 0
			translations := make([][3]float32, frames)
			rotations := make([][4]float32, frames)
			for f := 0; f < frames; f++ {
				k := keys[f*bones+b]
				pos, q := skeleton.LocalTransform(root, k.Position, k.Orientation)
				q = q.Normalize()
				translations[f] = pos
				rotations[f] = q.V.Vec4(q.W)
			}
			node := jointNodes[joint]
			addChannel(doc, anim, input, node, gltf.TRSTranslation, translations)
			addChannel(doc, anim, input, node, gltf.TRSRotation, rotations)
		}
		if len(anim.Channels) > 0 {
			doc.Animations = append(doc.Animations, anim)
		}
	}

	for name := range unmatched {
		logger.Warn("animation bone not in skeleton", zap.String("bone", name))
	}
	return nil
}

// frameTimes returns the time in seconds of each frame of an action.
func frameTimes(info formats.AnimInfo, frames int) []float32 {
	rate := info.AnimRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	times := make([]float32, frames)
	for f := range times {
		times[f] = float32(f) / rate
	}
	return times
}

// writeTimes writes a sampler input accessor. glTF requires its bounds.
func writeTimes(doc *gltf.Document, times []float32) uint32 {
	acc := modeler.WriteAccessor(doc, gltf.TargetNone, times)
	doc.Accessors[acc].Min = []float32{times[0]}
	doc.Accessors[acc].Max = []float32{times[len(times)-1]}
	return acc
}

func addChannel(doc *gltf.Document, anim *gltf.Animation, input, node uint32, path gltf.TRSProperty, values interface{}) {
	output := modeler.WriteAccessor(doc, gltf.TargetNone, values)
	anim.Samplers = append(anim.Samplers, &gltf.AnimationSampler{
		Input:         gltf.Index(input),
		Interpolation: gltf.InterpolationLinear,
		Output:        gltf.Index(output),
	})
	anim.Channels = append(anim.Channels, &gltf.Channel{
		Sampler: gltf.Index(uint32(len(anim.Samplers) - 1)),
		Target: gltf.ChannelTarget{
			Node: gltf.Index(node),
			Path: path,
		},
	})
}
