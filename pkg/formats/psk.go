package formats

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/Faultbox/skelconv/pkg/chunk"
)

// PSK chunk layout, in file order.
var (
	pskHeader     = chunkSpec{"ACTRHEAD", 0}
	pskPoints     = chunkSpec{"PNTS0000", PointSize}
	pskWedges     = chunkSpec{"VTXW0000", WedgeSize}
	pskFaces      = chunkSpec{"FACE0000", TriangleSize}
	pskMaterials  = chunkSpec{"MATT0000", MaterialSize}
	pskBones      = chunkSpec{"REFSKELT", BoneSize}
	pskInfluences = chunkSpec{"RAWWEIGHTS", InfluenceSize}
)

// ErrIndexRange is returned by Validate when a record references an index
// outside its target table.
var ErrIndexRange = errors.New("record index out of range")

// PSK is a skeletal mesh file.
type PSK struct {
	Points     []Point
	Wedges     []Wedge
	Faces      []Triangle
	Materials  []Material
	Bones      []Bone
	Influences []Influence
}

// Bytes serializes the mesh in the fixed chunk order. Each chunk's record
// count is taken from the slice length at the time of the call.
func (p *PSK) Bytes(names *chunk.NameCodec) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, pskHeader); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, pskPoints, p.Points, EncodePoint); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, pskWedges, p.Wedges, Wedge.Encode); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, pskFaces, p.Faces, Triangle.Encode); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, pskMaterials, p.Materials, func(m Material) []byte { return m.Encode(names) }); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, pskBones, p.Bones, func(b Bone) []byte { return b.Encode(names) }); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, pskInfluences, p.Influences, Influence.Encode); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks that every wedge, face and influence index points into
// its table, and that bone parents precede their children.
func (p *PSK) Validate() error {
	for i, w := range p.Wedges {
		if int(w.PointIndex) >= len(p.Points) {
			return fmt.Errorf("%w: wedge %d references point %d of %d", ErrIndexRange, i, w.PointIndex, len(p.Points))
		}
	}
	for i, f := range p.Faces {
		for _, idx := range f.WedgeIndex {
			if int(idx) >= len(p.Wedges) {
				return fmt.Errorf("%w: face %d references wedge %d of %d", ErrIndexRange, i, idx, len(p.Wedges))
			}
		}
	}
	for i, b := range p.Bones {
		if b.ParentIndex > int32(i) {
			return fmt.Errorf("%w: bone %d (%s) has parent %d", ErrIndexRange, i, b.Name, b.ParentIndex)
		}
	}
	for i, inf := range p.Influences {
		if inf.PointIndex < 0 || int(inf.PointIndex) >= len(p.Points) {
			return fmt.Errorf("%w: influence %d references point %d of %d", ErrIndexRange, i, inf.PointIndex, len(p.Points))
		}
		if inf.BoneIndex < 0 || int(inf.BoneIndex) >= len(p.Bones) {
			return fmt.Errorf("%w: influence %d references bone %d of %d", ErrIndexRange, i, inf.BoneIndex, len(p.Bones))
		}
	}
	return nil
}

// ParsePSK parses a PSK file with raw names and a lenient type flag.
func ParsePSK(data []byte) (*PSK, error) {
	return ParsePSKWith(data, Options{})
}

// ParsePSKWith parses a PSK file. Chunks are read in the fixed order
// header, points, wedges, faces, materials, bones, influences.
func ParsePSKWith(data []byte, opts Options) (*PSK, error) {
	r := chunk.NewReader(bytes.NewReader(data))
	r.StrictTypeFlag = opts.StrictTypeFlag

	if err := skipChunk(r); err != nil {
		return nil, fmt.Errorf("reading PSK header: %w", err)
	}

	psk := &PSK{}
	var err error
	if psk.Points, err = decodeAll(r, pskPoints, DecodePoint); err != nil {
		return nil, fmt.Errorf("reading points: %w", err)
	}
	if psk.Wedges, err = decodeAll(r, pskWedges, DecodeWedge); err != nil {
		return nil, fmt.Errorf("reading wedges: %w", err)
	}
	if psk.Faces, err = decodeAll(r, pskFaces, DecodeTriangle); err != nil {
		return nil, fmt.Errorf("reading faces: %w", err)
	}
	psk.Materials, err = decodeAll(r, pskMaterials, func(b []byte) (Material, error) {
		return DecodeMaterial(b, opts.Names)
	})
	if err != nil {
		return nil, fmt.Errorf("reading materials: %w", err)
	}
	psk.Bones, err = decodeAll(r, pskBones, func(b []byte) (Bone, error) {
		return DecodeBone(b, opts.Names)
	})
	if err != nil {
		return nil, fmt.Errorf("reading bones: %w", err)
	}
	if psk.Influences, err = decodeAll(r, pskInfluences, DecodeInfluence); err != nil {
		return nil, fmt.Errorf("reading influences: %w", err)
	}
	return psk, nil
}

// ParsePSKFile reads and parses a PSK file from disk.
func ParsePSKFile(path string, opts Options) (*PSK, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading PSK file: %w", err)
	}
	return ParsePSKWith(data, opts)
}
