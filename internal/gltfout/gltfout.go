// Package gltfout writes an imported model as a binary glTF file for
// previewing in any glTF viewer.
package gltfout

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/skelconv/internal/pipeline"
)

// MaxInfluences is the number of joints a glTF vertex can reference.
const MaxInfluences = 4

// ErrEmptyModel is returned for a model with neither geometry nor bones.
var ErrEmptyModel = errors.New("model has nothing to write")

// Build converts model into a glTF document: one node per joint, a mesh
// node carrying the skin, one primitive per material in use, and one
// animation per action when the model carries an animation file.
func Build(model *pipeline.ImportedModel) (*gltf.Document, error) {
	if len(model.Vertices) == 0 && len(model.Joints) == 0 {
		return nil, ErrEmptyModel
	}
	doc := gltf.NewDocument()

	jointNodes := addJoints(doc, model)

	if len(model.Triangles) > 0 {
		mesh := addMesh(doc, model, len(jointNodes) > 0)
		node := &gltf.Node{
			Name:  "mesh",
			Mesh:  gltf.Index(mesh),
			Scale: [3]float32{1, 1, 1},
		}
		if len(jointNodes) > 0 {
			node.Skin = gltf.Index(addSkin(doc, model, jointNodes))
		}
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)))
		doc.Nodes = append(doc.Nodes, node)
	}
	if err := addAnimations(doc, model, jointNodes); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write encodes model as binary glTF.
func Write(w io.Writer, model *pipeline.ImportedModel) error {
	doc, err := Build(model)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding glTF: %w", err)
	}
	return nil
}

// addJoints appends a node per joint with its transform relative to the
// parent joint. Root joints are added to the scene.
func addJoints(doc *gltf.Document, model *pipeline.ImportedModel) []uint32 {
	nodes := make([]uint32, len(model.Joints))
	for i, j := range model.Joints {
		t, r := j.Position, j.Orientation
		if j.Parent >= 0 {
			p := model.Joints[j.Parent]
			inv := p.Orientation.Conjugate()
			t = inv.Rotate(j.Position.Sub(p.Position))
			r = inv.Mul(j.Orientation)
		}
		r = r.Normalize()

		nodes[i] = uint32(len(doc.Nodes))
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:        j.Name,
			Translation: t,
			Rotation:    r.V.Vec4(r.W),
			Scale:       [3]float32{1, 1, 1},
		})
		if j.Parent >= 0 {
			parent := doc.Nodes[nodes[j.Parent]]
			parent.Children = append(parent.Children, nodes[i])
		} else {
			doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, nodes[i])
		}
	}
	return nodes
}

// addSkin appends the skin and its inverse bind matrices.
func addSkin(doc *gltf.Document, model *pipeline.ImportedModel, joints []uint32) uint32 {
	ibm := make([][4][4]float32, len(model.Joints))
	for i, j := range model.Joints {
		world := mgl32.Translate3D(j.Position[0], j.Position[1], j.Position[2]).Mul4(j.Orientation.Normalize().Mat4())
		inv := world.Inv()
		for c := range ibm[i] {
			ibm[i][c] = inv.Col(c)
		}
	}
	// Not vertex data, so the buffer view carries no target.
	acc := modeler.WriteAccessor(doc, gltf.TargetNone, ibm)

	doc.Skins = append(doc.Skins, &gltf.Skin{
		Name:                "skeleton",
		Joints:              joints,
		InverseBindMatrices: gltf.Index(acc),
	})
	return uint32(len(doc.Skins) - 1)
}

// addMesh writes the vertex attributes once and one indexed primitive per
// material, in order of first use.
func addMesh(doc *gltf.Document, model *pipeline.ImportedModel, skinned bool) uint32 {
	positions := make([][3]float32, len(model.Vertices))
	uvs := make([][2]float32, len(model.Vertices))
	for i, v := range model.Vertices {
		positions[i] = v.Position
		uvs[i] = v.UV
	}
	attributes := map[string]uint32{
		"POSITION":   modeler.WritePosition(doc, positions),
		"TEXCOORD_0": modeler.WriteTextureCoord(doc, uvs),
	}
	if skinned {
		joints, weights := vertexInfluences(model)
		attributes["JOINTS_0"] = modeler.WriteJoints(doc, joints)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(doc, weights)
	}

	var order []int
	indices := make(map[int][]uint32)
	for _, tri := range model.Triangles {
		if _, ok := indices[tri.Material]; !ok {
			order = append(order, tri.Material)
		}
		for _, v := range tri.Vertices {
			indices[tri.Material] = append(indices[tri.Material], uint32(v))
		}
	}

	materials := addMaterials(doc, model, order)
	mesh := &gltf.Mesh{Name: "model"}
	for _, mat := range order {
		mesh.Primitives = append(mesh.Primitives, &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(doc, indices[mat])),
			Attributes: attributes,
			Material:   gltf.Index(materials[mat]),
		})
	}
	doc.Meshes = append(doc.Meshes, mesh)
	return uint32(len(doc.Meshes) - 1)
}

// addMaterials appends a material for every slot in order and returns the
// glTF index of each slot.
func addMaterials(doc *gltf.Document, model *pipeline.ImportedModel, order []int) map[int]uint32 {
	out := make(map[int]uint32, len(order))
	for _, slot := range order {
		name := fmt.Sprintf("Mat%d", slot)
		if slot < len(model.Materials) && model.Materials[slot] != "" {
			name = model.Materials[slot]
		}
		out[slot] = uint32(len(doc.Materials))
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name:        name,
			DoubleSided: true,
		})
	}
	return out
}

type weight struct {
	joint uint16
	value float32
}

// vertexInfluences picks the strongest MaxInfluences weights of each
// vertex's point and normalizes them. A vertex with no weight is bound
// fully to the first joint.
func vertexInfluences(model *pipeline.ImportedModel) ([][4]uint16, [][4]float32) {
	byPoint := make(map[int][]weight)
	for _, g := range model.Groups {
		for _, inf := range g.Weights {
			if inf.Weight <= 0 {
				continue
			}
			p := int(inf.PointIndex)
			byPoint[p] = append(byPoint[p], weight{joint: uint16(g.Bone), value: inf.Weight})
		}
	}

	joints := make([][4]uint16, len(model.Vertices))
	weights := make([][4]float32, len(model.Vertices))
	for i, v := range model.Vertices {
		ws := byPoint[v.Point]
		if len(ws) == 0 {
			weights[i] = [4]float32{1, 0, 0, 0}
			continue
		}
		sort.SliceStable(ws, func(a, b int) bool { return ws[a].value > ws[b].value })
		ws = ws[:min(len(ws), MaxInfluences)]

		var sum float32
		for _, w := range ws {
			sum += w.value
		}
		for k, w := range ws {
			joints[i][k] = w.joint
			weights[i][k] = w.value / sum
		}
	}
	return joints, weights
}
