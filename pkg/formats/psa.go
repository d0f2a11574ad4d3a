package formats

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/Faultbox/skelconv/pkg/chunk"
)

// PSA chunk layout, in file order.
var (
	psaHeader     = chunkSpec{"ANIMHEAD", 0}
	psaBones      = chunkSpec{"BONENAMES", BoneSize}
	psaAnimations = chunkSpec{"ANIMINFO", AnimInfoSize}
	psaKeys       = chunkSpec{"ANIMKEYS", KeySize}
)

// ErrKeyRange is returned when an animation's key window lies outside the
// key stream.
var ErrKeyRange = errors.New("animation keys out of range")

// PSA is an animation file. Keys are stored per animation, then per frame,
// then per bone in Bones order.
type PSA struct {
	Bones      []Bone
	Animations []AnimInfo
	Keys       []Key
}

// IsEmpty reports whether the file would carry no usable animation.
func (p *PSA) IsEmpty() bool {
	return len(p.Bones) == 0 || len(p.Animations) == 0
}

// ActionKeys returns the keys of animation i. The window starts at
// FirstRawFrame*TotalBones and holds NumRawFrames*TotalBones keys.
func (p *PSA) ActionKeys(i int) ([]Key, error) {
	if i < 0 || i >= len(p.Animations) {
		return nil, fmt.Errorf("%w: animation %d of %d", ErrKeyRange, i, len(p.Animations))
	}
	info := p.Animations[i]
	start := int64(info.FirstRawFrame) * int64(info.TotalBones)
	n := int64(info.NumRawFrames) * int64(info.TotalBones)
	if start < 0 || n < 0 || start+n > int64(len(p.Keys)) {
		return nil, &chunk.FormatError{
			Chunk: psaKeys.id,
			Err:   fmt.Errorf("%w: %q wants keys [%d,%d) of %d", ErrKeyRange, info.Name, start, start+n, len(p.Keys)),
		}
	}
	return p.Keys[start : start+n], nil
}

// Bytes serializes the animation in the fixed chunk order.
func (p *PSA) Bytes(names *chunk.NameCodec) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, psaHeader); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, psaBones, p.Bones, func(b Bone) []byte { return b.Encode(names) }); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, psaAnimations, p.Animations, func(a AnimInfo) []byte { return a.Encode(names) }); err != nil {
		return nil, err
	}
	if err := writeSection(&buf, psaKeys, p.Keys, Key.Encode); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParsePSA parses a PSA file with raw names and a lenient type flag.
func ParsePSA(data []byte) (*PSA, error) {
	return ParsePSAWith(data, Options{})
}

// ParsePSAWith parses a PSA file: header, bones, animations, keys.
func ParsePSAWith(data []byte, opts Options) (*PSA, error) {
	r := chunk.NewReader(bytes.NewReader(data))
	r.StrictTypeFlag = opts.StrictTypeFlag

	if err := skipChunk(r); err != nil {
		return nil, fmt.Errorf("reading PSA header: %w", err)
	}

	psa := &PSA{}
	var err error
	psa.Bones, err = decodeAll(r, psaBones, func(b []byte) (Bone, error) {
		return DecodeBone(b, opts.Names)
	})
	if err != nil {
		return nil, fmt.Errorf("reading bones: %w", err)
	}
	psa.Animations, err = decodeAll(r, psaAnimations, func(b []byte) (AnimInfo, error) {
		return DecodeAnimInfo(b, opts.Names)
	})
	if err != nil {
		return nil, fmt.Errorf("reading animations: %w", err)
	}
	if psa.Keys, err = decodeAll(r, psaKeys, DecodeKey); err != nil {
		return nil, fmt.Errorf("reading keys: %w", err)
	}
	return psa, nil
}

// ParsePSAFile reads and parses a PSA file from disk.
func ParsePSAFile(path string, opts Options) (*PSA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading PSA file: %w", err)
	}
	return ParsePSAWith(data, opts)
}
