package pipeline

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/skelconv/internal/logger"
	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/skeleton"
)

// ImportOptions controls an import.
type ImportOptions struct {
	Formats formats.Options
	// FlipV undoes the export-side 1-v flip.
	FlipV bool
	// LoadPSA also reads the animation file next to the mesh, if present.
	LoadPSA bool
}

// Vertex is one imported wedge.
type Vertex struct {
	Point    int
	Position mgl32.Vec3
	UV       [2]float32
	Material int
}

// Triangle indexes three vertices.
type Triangle struct {
	Vertices        [3]int
	Material        int
	SmoothingGroups uint32
}

// ImportedModel is a PSK file rebuilt for display.
type ImportedModel struct {
	Points    []mgl32.Vec3
	Vertices  []Vertex
	Triangles []Triangle
	Materials []string
	Joints    []skeleton.Joint
	Groups    []skeleton.InfluenceGroup
	// Orphans are influences naming a bone or point the file does not have.
	Orphans []formats.Influence

	// Animation is the paired animation file, when one was loaded.
	Animation *formats.PSA
}

// Import rebuilds a model from a parsed PSK.
func Import(psk *formats.PSK, opts ImportOptions) (*ImportedModel, error) {
	m := &ImportedModel{
		Points:   append([]mgl32.Vec3(nil), psk.Points...),
		Vertices: make([]Vertex, len(psk.Wedges)),
	}

	for i, w := range psk.Wedges {
		if int(w.PointIndex) >= len(psk.Points) {
			return nil, stageErr(StageMesh, fmt.Errorf("%w: wedge %d references point %d of %d",
				formats.ErrIndexRange, i, w.PointIndex, len(psk.Points)))
		}
		v := w.V
		if opts.FlipV {
			v = 1 - v
		}
		m.Vertices[i] = Vertex{
			Point:    int(w.PointIndex),
			Position: psk.Points[w.PointIndex],
			UV:       [2]float32{w.U, v},
			Material: int(w.MatIndex),
		}
	}

	m.Triangles = make([]Triangle, len(psk.Faces))
	for i, f := range psk.Faces {
		for _, idx := range f.WedgeIndex {
			if int(idx) >= len(psk.Wedges) {
				return nil, stageErr(StageMesh, fmt.Errorf("%w: face %d references wedge %d of %d",
					formats.ErrIndexRange, i, idx, len(psk.Wedges)))
			}
		}
		// Stored winding is reversed relative to the display convention.
		m.Triangles[i] = Triangle{
			Vertices:        [3]int{int(f.WedgeIndex[0]), int(f.WedgeIndex[2]), int(f.WedgeIndex[1])},
			Material:        int(f.MatIndex),
			SmoothingGroups: f.SmoothingGroups,
		}
	}

	for _, mat := range psk.Materials {
		m.Materials = append(m.Materials, mat.Name)
	}

	joints, err := skeleton.Reconstruct(psk.Bones)
	if err != nil {
		return nil, stageErr(StageArmature, err)
	}
	m.Joints = joints

	groups, orphans := skeleton.GroupInfluences(psk.Bones, psk.Influences)
	for _, g := range groups {
		kept := g.Weights[:0]
		for _, inf := range g.Weights {
			if inf.PointIndex < 0 || int(inf.PointIndex) >= len(psk.Points) {
				orphans = append(orphans, inf)
				continue
			}
			kept = append(kept, inf)
		}
		g.Weights = kept
		m.Groups = append(m.Groups, g)
	}
	m.Orphans = orphans
	return m, nil
}

// ImportFile parses a PSK file and rebuilds it. With opts.LoadPSA the
// matching .psa file is read too when it exists.
func ImportFile(path string, opts ImportOptions) (*ImportedModel, error) {
	psk, err := formats.ParsePSKFile(path, opts.Formats)
	if err != nil {
		return nil, stageErr(StageRead, errors.Wrapf(err, "mesh file %s", path))
	}
	m, err := Import(psk, opts)
	if err != nil {
		return nil, err
	}

	if opts.LoadPSA {
		psaPath := AnimationPath(path)
		if _, statErr := os.Stat(psaPath); statErr == nil {
			psa, err := formats.ParsePSAFile(psaPath, opts.Formats)
			if err != nil {
				return nil, stageErr(StageRead, errors.Wrapf(err, "animation file %s", psaPath))
			}
			m.Animation = psa
			logger.Info("loaded animation",
				zap.String("path", psaPath),
				zap.Int("actions", len(psa.Animations)),
				zap.Int("bones", len(psa.Bones)),
				zap.Int("keys", len(psa.Keys)),
			)
		} else {
			logger.Debug("no animation file", zap.String("path", psaPath))
		}
	}

	if len(m.Orphans) > 0 {
		logger.Warn("influences reference missing bones or points", zap.Int("count", len(m.Orphans)))
	}
	logger.Info("imported",
		zap.String("path", path),
		zap.Int("points", len(m.Points)),
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("triangles", len(m.Triangles)),
		zap.Int("bones", len(m.Joints)),
		zap.Int("groups", len(m.Groups)),
	)
	return m, nil
}
