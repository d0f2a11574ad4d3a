package gltfout

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/skelconv/internal/pipeline"
	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/skeleton"
)

func testPSK() *formats.PSK {
	return &formats.PSK{
		Points: []formats.Point{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Wedges: []formats.Wedge{
			{PointIndex: 0},
			{PointIndex: 1, U: 1},
			{PointIndex: 2, V: 1},
			{PointIndex: 2, V: 1, MatIndex: 1},
		},
		Faces: []formats.Triangle{
			{WedgeIndex: [3]uint16{0, 1, 2}},
			{WedgeIndex: [3]uint16{0, 1, 3}, MatIndex: 1},
		},
		Materials: []formats.Material{{Name: "skin"}},
		Bones: []formats.Bone{
			{Name: "root", Orientation: formats.Quat{W: 1}, Position: mgl32.Vec3{0, 0, 1}},
			{Name: "arm", ParentIndex: 0, Orientation: formats.Quat{W: 1}, Position: mgl32.Vec3{2, 0, 0}},
		},
		Influences: []formats.Influence{
			{Weight: 1, PointIndex: 0, BoneIndex: 0},
			{Weight: 1, PointIndex: 1, BoneIndex: 0},
			{Weight: 3, PointIndex: 1, BoneIndex: 1},
		},
	}
}

func testModel(t *testing.T) *pipeline.ImportedModel {
	t.Helper()
	model, err := pipeline.Import(testPSK(), pipeline.ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	return model
}

func TestBuild_Structure(t *testing.T) {
	doc, err := Build(testModel(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Two joints plus the mesh node.
	if len(doc.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(doc.Nodes))
	}
	root, arm := doc.Nodes[0], doc.Nodes[1]
	if len(root.Children) != 1 || root.Children[0] != 1 {
		t.Errorf("arm not parented to root: %v", root.Children)
	}
	if arm.Translation != [3]float32{2, 0, 0} {
		t.Errorf("expected local translation [2 0 0], got %v", arm.Translation)
	}
	if root.Translation != [3]float32{0, 0, 1} {
		t.Errorf("expected root translation [0 0 1], got %v", root.Translation)
	}
	if len(doc.Scenes[0].Nodes) != 2 {
		t.Errorf("expected root joint and mesh in scene, got %v", doc.Scenes[0].Nodes)
	}

	if len(doc.Skins) != 1 || len(doc.Skins[0].Joints) != 2 {
		t.Fatalf("unexpected skins: %+v", doc.Skins)
	}
	ibm := doc.Accessors[*doc.Skins[0].InverseBindMatrices]
	if ibm.Type != gltf.AccessorMat4 || ibm.Count != 2 {
		t.Errorf("inverse bind matrices: type %v count %d", ibm.Type, ibm.Count)
	}

	if len(doc.Meshes) != 1 || len(doc.Meshes[0].Primitives) != 2 {
		t.Fatalf("expected one mesh with a primitive per material, got %+v", doc.Meshes)
	}
	for _, attr := range []string{"POSITION", "TEXCOORD_0", "JOINTS_0", "WEIGHTS_0"} {
		if _, ok := doc.Meshes[0].Primitives[0].Attributes[attr]; !ok {
			t.Errorf("missing attribute %s", attr)
		}
	}
	if n := doc.Accessors[doc.Meshes[0].Primitives[0].Attributes["POSITION"]].Count; n != 4 {
		t.Errorf("expected 4 vertices, got %d", n)
	}

	names := []string{doc.Materials[0].Name, doc.Materials[1].Name}
	if names[0] != "skin" || names[1] != "Mat1" {
		t.Errorf("unexpected materials: %v", names)
	}
}

func TestBuild_InverseBindMatrices(t *testing.T) {
	doc, err := Build(testModel(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	acc := doc.Accessors[*doc.Skins[0].InverseBindMatrices]
	if acc.Type != gltf.AccessorMat4 || acc.ComponentType != gltf.ComponentFloat || acc.Count != 2 {
		t.Fatalf("accessor: type %v component %v count %d", acc.Type, acc.ComponentType, acc.Count)
	}
	view := doc.BufferViews[*acc.BufferView]
	if view.Target != gltf.TargetNone {
		t.Errorf("buffer view target %v, want none", view.Target)
	}
	if view.ByteStride != 0 {
		t.Errorf("buffer view stride %d, want 0", view.ByteStride)
	}
	if view.ByteLength != 2*64 {
		t.Errorf("buffer view length %d, want 128", view.ByteLength)
	}

	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		t.Fatalf("ReadAccessor: %v", err)
	}
	mats := data.([][4][4]float32)
	// The arm sits at (2,0,1) with no rotation; its inverse bind matrix
	// translates by the negated position in the last column.
	if mats[1][3] != [4]float32{-2, 0, -1, 1} {
		t.Errorf("arm inverse bind translation %v, want [-2 0 -1 1]", mats[1][3])
	}
	if mats[1][0] != [4]float32{1, 0, 0, 0} {
		t.Errorf("arm inverse bind first column %v", mats[1][0])
	}
}

func TestVertexInfluences(t *testing.T) {
	joints, weights := vertexInfluences(testModel(t))

	tests := []struct {
		name    string
		vertex  int
		joints  [4]uint16
		weights [4]float32
	}{
		{"single bone", 0, [4]uint16{0}, [4]float32{1}},
		{"strongest first and normalized", 1, [4]uint16{1, 0}, [4]float32{0.75, 0.25}},
		{"unweighted", 2, [4]uint16{}, [4]float32{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if joints[tt.vertex] != tt.joints {
				t.Errorf("joints %v, want %v", joints[tt.vertex], tt.joints)
			}
			if weights[tt.vertex] != tt.weights {
				t.Errorf("weights %v, want %v", weights[tt.vertex], tt.weights)
			}
		})
	}
}

func TestVertexInfluences_KeepsFour(t *testing.T) {
	model := &pipeline.ImportedModel{Vertices: []pipeline.Vertex{{Point: 0}}}
	for bone := 0; bone < 6; bone++ {
		model.Groups = append(model.Groups, skeletonGroup(bone, float32(bone+1)))
	}
	joints, weights := vertexInfluences(model)
	if joints[0] != [4]uint16{5, 4, 3, 2} {
		t.Errorf("expected the four heaviest joints, got %v", joints[0])
	}
	var sum float32
	for _, w := range weights[0] {
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("weights not normalized: %v", weights[0])
	}
}

func TestWrite_Decodes(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testModel(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("glTF")) {
		t.Fatalf("expected GLB magic, got % x", buf.Bytes()[:4])
	}

	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(doc); err != nil {
		t.Fatalf("decoding written file: %v", err)
	}
	if len(doc.Nodes) != 3 || len(doc.Skins) != 1 || len(doc.Meshes) != 1 {
		t.Errorf("decoded %d nodes, %d skins, %d meshes", len(doc.Nodes), len(doc.Skins), len(doc.Meshes))
	}
	if doc.Nodes[1].Name != "arm" {
		t.Errorf("expected node arm, got %q", doc.Nodes[1].Name)
	}
}

func TestBuild_Empty(t *testing.T) {
	if _, err := Build(&pipeline.ImportedModel{}); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("expected ErrEmptyModel, got %v", err)
	}
}

func skeletonGroup(bone int, w float32) skeleton.InfluenceGroup {
	return skeleton.InfluenceGroup{
		Bone:    bone,
		Weights: []formats.Influence{{Weight: w, PointIndex: 0, BoneIndex: int32(bone)}},
	}
}
