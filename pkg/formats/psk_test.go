package formats

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/chunk"
)

// createTestPSK builds a one-triangle mesh with a two-bone skeleton.
func createTestPSK() *PSK {
	return &PSK{
		Points: []Point{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Wedges: []Wedge{
			{PointIndex: 0, U: 0, V: 1},
			{PointIndex: 1, U: 1, V: 1},
			{PointIndex: 2, U: 0, V: 0},
		},
		Faces: []Triangle{{WedgeIndex: [3]uint16{2, 1, 0}, SmoothingGroups: 1}},
		Materials: []Material{
			{Name: "Kürass"},
		},
		Bones: []Bone{
			{Name: "root", NumChildren: 1, ParentIndex: 0, Orientation: Quat{W: 1}},
			{Name: "spine", ParentIndex: 0, Orientation: Quat{W: 1}, Position: mgl32.Vec3{0, 0, 2}},
		},
		Influences: []Influence{
			{Weight: 1, PointIndex: 0, BoneIndex: 0},
			{Weight: 0.5, PointIndex: 1, BoneIndex: 1},
		},
	}
}

func TestPSK_RoundTrip(t *testing.T) {
	names, err := chunk.NewNameCodec(chunk.DefaultEncoding)
	if err != nil {
		t.Fatal(err)
	}
	want := createTestPSK()

	data, err := want.Bytes(names)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got, err := ParsePSKWith(data, Options{Names: names, StrictTypeFlag: true})
	if err != nil {
		t.Fatalf("ParsePSKWith: %v", err)
	}

	if len(got.Points) != 3 || got.Points[1] != want.Points[1] {
		t.Errorf("points: %v", got.Points)
	}
	if len(got.Wedges) != 3 || got.Wedges[2] != want.Wedges[2] {
		t.Errorf("wedges: %+v", got.Wedges)
	}
	if len(got.Faces) != 1 || got.Faces[0] != want.Faces[0] {
		t.Errorf("faces: %+v", got.Faces)
	}
	if len(got.Materials) != 1 || got.Materials[0].Name != "Kürass" {
		t.Errorf("materials: %+v", got.Materials)
	}
	if len(got.Bones) != 2 || got.Bones[1] != want.Bones[1] {
		t.Errorf("bones: %+v", got.Bones)
	}
	if len(got.Influences) != 2 || got.Influences[1] != want.Influences[1] {
		t.Errorf("influences: %+v", got.Influences)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestPSK_ChunkOrder(t *testing.T) {
	data, err := createTestPSK().Bytes(nil)
	if err != nil {
		t.Fatal(err)
	}
	headers, err := chunk.Scan(bytesReader(data))
	if err != nil {
		t.Fatal(err)
	}

	want := []chunkSpec{pskHeader, pskPoints, pskWedges, pskFaces, pskMaterials, pskBones, pskInfluences}
	if len(headers) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(headers))
	}
	for i, h := range headers {
		if h.ID != want[i].id || int(h.DataSize) != want[i].size || !h.HasMagic() {
			t.Errorf("chunk %d: got %s, want %s/%d", i, h, want[i].id, want[i].size)
		}
	}
	if headers[6].DataCount != 2 {
		t.Errorf("influence count %d, want 2", headers[6].DataCount)
	}
}

func TestPSK_EmptyWritesEveryChunk(t *testing.T) {
	data, err := (&PSK{}).Bytes(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 7*chunk.HeaderSize {
		t.Fatalf("expected 7 bare headers, got %d bytes", len(data))
	}
	headers, err := chunk.Scan(bytesReader(data))
	if err != nil {
		t.Fatal(err)
	}
	for i, spec := range []chunkSpec{pskHeader, pskPoints, pskWedges, pskFaces, pskMaterials, pskBones, pskInfluences} {
		if headers[i].ID != spec.id || headers[i].DataCount != 0 {
			t.Errorf("chunk %d: got %s, want empty %s", i, headers[i], spec.id)
		}
	}
}

func TestParsePSK_Truncated(t *testing.T) {
	data, _ := createTestPSK().Bytes(nil)

	for _, cut := range []int{0, 10, chunk.HeaderSize + 5, len(data) / 2, len(data) - 1} {
		psk, err := ParsePSK(data[:cut])
		if !errors.Is(err, chunk.ErrTruncated) {
			t.Errorf("cut at %d: expected ErrTruncated, got %v", cut, err)
		}
		if psk != nil {
			t.Errorf("cut at %d: partial PSK returned", cut)
		}
	}
}

func TestParsePSK_Positional(t *testing.T) {
	// A file whose wedge chunk comes before the points chunk is read
	// positionally and fails on the record size of the second chunk.
	var data []byte
	for _, part := range [][]byte{
		mustChunk(t, "ACTRHEAD", 0, 0),
		mustChunk(t, "VTXW0000", WedgeSize, 1),
		mustChunk(t, "PNTS0000", PointSize, 1),
	} {
		data = append(data, part...)
	}

	_, err := ParsePSK(data)
	if !errors.Is(err, chunk.ErrRecordSize) {
		t.Fatalf("expected ErrRecordSize, got %v", err)
	}
	var fe *chunk.FormatError
	if !errors.As(err, &fe) || fe.Chunk != "VTXW0000" {
		t.Errorf("expected FormatError for VTXW0000, got %v", err)
	}
}

func TestParsePSK_OversizedHeaders(t *testing.T) {
	// Headers claiming a gigabyte of payload in a tiny file.
	huge := func(id string, size int) []byte {
		h := mustChunk(t, id, size, 0)
		binary.LittleEndian.PutUint32(h[24:], 1<<30)
		binary.LittleEndian.PutUint32(h[28:], 1)
		return h
	}

	tests := []struct {
		name string
		data []byte
		is   error
	}{
		{"file header", huge("ACTRHEAD", 0), chunk.ErrTruncated},
		{"points", append(mustChunk(t, "ACTRHEAD", 0, 0), huge("PNTS0000", PointSize)...), chunk.ErrRecordSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			psk, err := ParsePSK(tt.data)
			if !errors.Is(err, tt.is) {
				t.Fatalf("expected %v, got %v", tt.is, err)
			}
			if psk != nil {
				t.Error("partial PSK returned")
			}
		})
	}
}

func TestPSK_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PSK)
	}{
		{"wedge point", func(p *PSK) { p.Wedges[0].PointIndex = 3 }},
		{"face wedge", func(p *PSK) { p.Faces[0].WedgeIndex[1] = 9 }},
		{"bone parent after child", func(p *PSK) { p.Bones[0].ParentIndex = 1 }},
		{"influence point", func(p *PSK) { p.Influences[0].PointIndex = -1 }},
		{"influence bone", func(p *PSK) { p.Influences[1].BoneIndex = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestPSK()
			tt.mutate(p)
			if err := p.Validate(); !errors.Is(err, ErrIndexRange) {
				t.Errorf("expected ErrIndexRange, got %v", err)
			}
		})
	}
}

func TestParsePSKFile(t *testing.T) {
	testFile := filepath.Join("testdata", "test.psk")
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Skip("testdata/test.psk not found, run: go run testdata/generate_psk.go")
	}

	psk, err := ParsePSKFile(testFile, Options{StrictTypeFlag: true})
	if err != nil {
		t.Fatalf("ParsePSKFile: %v", err)
	}
	if len(psk.Points) != 3 || len(psk.Faces) != 1 || len(psk.Influences) != 3 {
		t.Errorf("unexpected counts: %d points, %d faces, %d influences",
			len(psk.Points), len(psk.Faces), len(psk.Influences))
	}
	if psk.Bones[0].Name != "root" || psk.Materials[0].Name != "skin" {
		t.Errorf("unexpected names: %q, %q", psk.Bones[0].Name, psk.Materials[0].Name)
	}
	if err := psk.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func mustChunk(t *testing.T, id string, size, count int) []byte {
	t.Helper()
	records := make([][]byte, count)
	for i := range records {
		records[i] = make([]byte, size)
	}
	data, err := chunk.WriteChunk(id, size, records)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
