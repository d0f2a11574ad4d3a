package formats

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelconv/pkg/chunk"
)

// Record sizes in bytes.
const (
	PointSize     = 12
	WedgeSize     = 16
	TriangleSize  = 12
	MaterialSize  = 88
	BoneSize      = 120
	InfluenceSize = 12
	AnimInfoSize  = 168
	KeySize       = 32

	NameSize = 64
)

// Quat is a quaternion as stored on disk: X, Y, Z, W.
type Quat struct {
	X, Y, Z, W float32
}

// QuatFrom converts an mgl32 quaternion.
func QuatFrom(q mgl32.Quat) Quat {
	return Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

// Mgl converts to an mgl32 quaternion.
func (q Quat) Mgl() mgl32.Quat {
	return mgl32.Quat{W: q.W, V: mgl32.Vec3{q.X, q.Y, q.Z}}
}

// Point is a deduplicated vertex position.
type Point = mgl32.Vec3

// Wedge binds a point to a texture coordinate and material.
type Wedge struct {
	PointIndex uint16
	U, V       float32
	MatIndex   uint8
	Reserved   uint8
}

// Triangle references three wedges.
type Triangle struct {
	WedgeIndex      [3]uint16
	MatIndex        uint8
	AuxMatIndex     uint8
	SmoothingGroups uint32
}

// Material is a named material slot. Only the name is interpreted.
type Material struct {
	Name         string
	TextureIndex int32
	PolyFlags    uint32
	AuxMaterial  int32
	AuxFlags     uint32
	LodBias      int32
	LodStyle     int32
}

// Bone is a reference-skeleton bone. Position and Orientation are relative
// to the parent bone, except for roots where they are world-space.
type Bone struct {
	Name        string
	Flags       uint32
	NumChildren int32
	ParentIndex int32
	Orientation Quat
	Position    mgl32.Vec3
	Length      float32
	XSize       float32
	YSize       float32
	ZSize       float32
}

// BoneFlagSynthesized marks a PSA bone that was referenced by an animation
// but not present in the exported skeleton.
const BoneFlagSynthesized uint32 = 1

// Influence is one vertex weight.
type Influence struct {
	Weight     float32
	PointIndex int32
	BoneIndex  int32
}

// AnimInfo describes one animation sequence in a PSA.
type AnimInfo struct {
	Name                string
	Group               string
	TotalBones          int32
	RootInclude         int32
	KeyCompressionStyle int32
	KeyQuotum           int32
	KeyReduction        float32
	TrackTime           float32
	AnimRate            float32
	StartBone           int32
	FirstRawFrame       int32
	NumRawFrames        int32
}

// Key is one sampled bone transform. Time is the delay until the next key.
type Key struct {
	Position    mgl32.Vec3
	Orientation Quat
	Time        float32
}

// recordWriter fills a fixed-size record buffer.
type recordWriter struct {
	buf []byte
	off int
}

func newRecordWriter(size int) *recordWriter {
	return &recordWriter{buf: make([]byte, size)}
}

func (w *recordWriter) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *recordWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *recordWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *recordWriter) i32(v int32)   { w.u32(uint32(v)) }
func (w *recordWriter) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *recordWriter) vec3(v mgl32.Vec3) {
	w.f32(v[0])
	w.f32(v[1])
	w.f32(v[2])
}

func (w *recordWriter) quat(q Quat) {
	w.f32(q.X)
	w.f32(q.Y)
	w.f32(q.Z)
	w.f32(q.W)
}

func (w *recordWriter) name(names *chunk.NameCodec, s string) {
	names.Put(w.buf[w.off:w.off+NameSize], s)
	w.off += NameSize
}

func (w *recordWriter) pad(n int) { w.off += n }

// recordReader walks a record whose size was validated up front.
type recordReader struct {
	buf []byte
	off int
}

func newRecordReader(kind string, b []byte, size int) (*recordReader, error) {
	if len(b) != size {
		return nil, fmt.Errorf("%w: %s record is %d bytes, want %d", chunk.ErrRecordSize, kind, len(b), size)
	}
	return &recordReader{buf: b}, nil
}

func (r *recordReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *recordReader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *recordReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *recordReader) i32() int32   { return int32(r.u32()) }
func (r *recordReader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *recordReader) vec3() mgl32.Vec3 {
	return mgl32.Vec3{r.f32(), r.f32(), r.f32()}
}

func (r *recordReader) quat() Quat {
	return Quat{X: r.f32(), Y: r.f32(), Z: r.f32(), W: r.f32()}
}

func (r *recordReader) name(names *chunk.NameCodec) string {
	s := names.Get(r.buf[r.off : r.off+NameSize])
	r.off += NameSize
	return s
}

func (r *recordReader) skip(n int) { r.off += n }

// EncodePoint encodes a point record.
func EncodePoint(p Point) []byte {
	w := newRecordWriter(PointSize)
	w.vec3(p)
	return w.buf
}

// DecodePoint decodes a point record.
func DecodePoint(b []byte) (Point, error) {
	r, err := newRecordReader("point", b, PointSize)
	if err != nil {
		return Point{}, err
	}
	return r.vec3(), nil
}

// Encode encodes a wedge record. Both padding words are written as zero.
func (w Wedge) Encode() []byte {
	rw := newRecordWriter(WedgeSize)
	rw.u16(w.PointIndex)
	rw.pad(2)
	rw.f32(w.U)
	rw.f32(w.V)
	rw.u8(w.MatIndex)
	rw.u8(w.Reserved)
	return rw.buf
}

// DecodeWedge decodes a wedge record.
func DecodeWedge(b []byte) (Wedge, error) {
	r, err := newRecordReader("wedge", b, WedgeSize)
	if err != nil {
		return Wedge{}, err
	}
	var w Wedge
	w.PointIndex = r.u16()
	r.skip(2)
	w.U = r.f32()
	w.V = r.f32()
	w.MatIndex = r.u8()
	w.Reserved = r.u8()
	return w, nil
}

// Encode encodes a triangle record.
func (t Triangle) Encode() []byte {
	w := newRecordWriter(TriangleSize)
	for _, idx := range t.WedgeIndex {
		w.u16(idx)
	}
	w.u8(t.MatIndex)
	w.u8(t.AuxMatIndex)
	w.u32(t.SmoothingGroups)
	return w.buf
}

// DecodeTriangle decodes a triangle record.
func DecodeTriangle(b []byte) (Triangle, error) {
	r, err := newRecordReader("triangle", b, TriangleSize)
	if err != nil {
		return Triangle{}, err
	}
	var t Triangle
	for i := range t.WedgeIndex {
		t.WedgeIndex[i] = r.u16()
	}
	t.MatIndex = r.u8()
	t.AuxMatIndex = r.u8()
	t.SmoothingGroups = r.u32()
	return t, nil
}

// Encode encodes a material record.
func (m Material) Encode(names *chunk.NameCodec) []byte {
	w := newRecordWriter(MaterialSize)
	w.name(names, m.Name)
	w.i32(m.TextureIndex)
	w.u32(m.PolyFlags)
	w.i32(m.AuxMaterial)
	w.u32(m.AuxFlags)
	w.i32(m.LodBias)
	w.i32(m.LodStyle)
	return w.buf
}

// DecodeMaterial decodes a material record.
func DecodeMaterial(b []byte, names *chunk.NameCodec) (Material, error) {
	r, err := newRecordReader("material", b, MaterialSize)
	if err != nil {
		return Material{}, err
	}
	return Material{
		Name:         r.name(names),
		TextureIndex: r.i32(),
		PolyFlags:    r.u32(),
		AuxMaterial:  r.i32(),
		AuxFlags:     r.u32(),
		LodBias:      r.i32(),
		LodStyle:     r.i32(),
	}, nil
}

// Encode encodes a bone record.
func (b Bone) Encode(names *chunk.NameCodec) []byte {
	w := newRecordWriter(BoneSize)
	w.name(names, b.Name)
	w.u32(b.Flags)
	w.i32(b.NumChildren)
	w.i32(b.ParentIndex)
	w.quat(b.Orientation)
	w.vec3(b.Position)
	w.f32(b.Length)
	w.f32(b.XSize)
	w.f32(b.YSize)
	w.f32(b.ZSize)
	return w.buf
}

// DecodeBone decodes a bone record.
func DecodeBone(data []byte, names *chunk.NameCodec) (Bone, error) {
	r, err := newRecordReader("bone", data, BoneSize)
	if err != nil {
		return Bone{}, err
	}
	return Bone{
		Name:        r.name(names),
		Flags:       r.u32(),
		NumChildren: r.i32(),
		ParentIndex: r.i32(),
		Orientation: r.quat(),
		Position:    r.vec3(),
		Length:      r.f32(),
		XSize:       r.f32(),
		YSize:       r.f32(),
		ZSize:       r.f32(),
	}, nil
}

// Encode encodes an influence record.
func (i Influence) Encode() []byte {
	w := newRecordWriter(InfluenceSize)
	w.f32(i.Weight)
	w.i32(i.PointIndex)
	w.i32(i.BoneIndex)
	return w.buf
}

// DecodeInfluence decodes an influence record.
func DecodeInfluence(b []byte) (Influence, error) {
	r, err := newRecordReader("influence", b, InfluenceSize)
	if err != nil {
		return Influence{}, err
	}
	return Influence{
		Weight:     r.f32(),
		PointIndex: r.i32(),
		BoneIndex:  r.i32(),
	}, nil
}

// Encode encodes an animation info record.
func (a AnimInfo) Encode(names *chunk.NameCodec) []byte {
	w := newRecordWriter(AnimInfoSize)
	w.name(names, a.Name)
	w.name(names, a.Group)
	w.i32(a.TotalBones)
	w.i32(a.RootInclude)
	w.i32(a.KeyCompressionStyle)
	w.i32(a.KeyQuotum)
	w.f32(a.KeyReduction)
	w.f32(a.TrackTime)
	w.f32(a.AnimRate)
	w.i32(a.StartBone)
	w.i32(a.FirstRawFrame)
	w.i32(a.NumRawFrames)
	return w.buf
}

// DecodeAnimInfo decodes an animation info record.
func DecodeAnimInfo(b []byte, names *chunk.NameCodec) (AnimInfo, error) {
	r, err := newRecordReader("animinfo", b, AnimInfoSize)
	if err != nil {
		return AnimInfo{}, err
	}
	return AnimInfo{
		Name:                r.name(names),
		Group:               r.name(names),
		TotalBones:          r.i32(),
		RootInclude:         r.i32(),
		KeyCompressionStyle: r.i32(),
		KeyQuotum:           r.i32(),
		KeyReduction:        r.f32(),
		TrackTime:           r.f32(),
		AnimRate:            r.f32(),
		StartBone:           r.i32(),
		FirstRawFrame:       r.i32(),
		NumRawFrames:        r.i32(),
	}, nil
}

// Encode encodes an animation key record.
func (k Key) Encode() []byte {
	w := newRecordWriter(KeySize)
	w.vec3(k.Position)
	w.quat(k.Orientation)
	w.f32(k.Time)
	return w.buf
}

// DecodeKey decodes an animation key record.
func DecodeKey(b []byte) (Key, error) {
	r, err := newRecordReader("key", b, KeySize)
	if err != nil {
		return Key{}, err
	}
	return Key{
		Position:    r.vec3(),
		Orientation: r.quat(),
		Time:        r.f32(),
	}, nil
}
