package chunk

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
)

// PutName copies s into dst and zero-fills the rest. Names longer than dst
// are truncated without error: the formats store names in fixed fields and
// existing tools do the same.
func PutName(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}

// Name returns the bytes of b up to the first NUL.
func Name(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// NameCodec converts between Go strings and the code page used for bone,
// material and animation names. A nil *NameCodec copies bytes unchanged.
type NameCodec struct {
	name string
	enc  encoding.Encoding
}

// DefaultEncoding is the code page assumed when none is configured.
const DefaultEncoding = "windows-1252"

// ErrUnknownEncoding is returned by NewNameCodec for a name it does not
// recognize.
var ErrUnknownEncoding = errors.New("unknown name encoding")

// Multi-byte code pages accepted besides the charmap single-byte ones.
var multiByte = map[string]encoding.Encoding{
	"EUC-KR": korean.EUCKR,
}

// NewNameCodec looks up a code page by name ("windows-1252", "Windows 1252",
// "iso-8859-1", "euc-kr", ...). The names "raw", "utf-8" and "" select a
// pass-through codec (nil).
func NewNameCodec(name string) (*NameCodec, error) {
	key := normalizeEncoding(name)
	switch key {
	case "", "raw", "utf8":
		return nil, nil
	}
	for label, enc := range multiByte {
		if normalizeEncoding(label) == key {
			return &NameCodec{name: label, enc: enc}, nil
		}
	}
	for _, enc := range charmap.All {
		cm, ok := enc.(*charmap.Charmap)
		if !ok {
			continue
		}
		if normalizeEncoding(cm.String()) == key {
			return &NameCodec{name: cm.String(), enc: cm}, nil
		}
	}
	return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownEncoding, name, strings.Join(Encodings(), ", "))
}

// Encodings lists the code page names accepted by NewNameCodec.
func Encodings() []string {
	list := []string{"raw"}
	for label := range multiByte {
		list = append(list, label)
	}
	for _, enc := range charmap.All {
		if cm, ok := enc.(*charmap.Charmap); ok {
			list = append(list, cm.String())
		}
	}
	return list
}

// Put encodes s into the fixed field dst. Runes the code page cannot
// represent are written as '?'. Truncation never splits a multi-byte
// character.
func (c *NameCodec) Put(dst []byte, s string) {
	if c == nil {
		PutName(dst, s)
		return
	}
	encoder := c.enc.NewEncoder()
	encoded := make([]byte, 0, len(dst))
	for _, r := range s {
		b, err := encoder.String(string(r))
		if err != nil {
			b = "?"
		}
		if len(encoded)+len(b) > len(dst) {
			break
		}
		encoded = append(encoded, b...)
	}
	PutName(dst, string(encoded))
}

// Get decodes a fixed field. Bytes that do not decode are returned as is.
func (c *NameCodec) Get(b []byte) string {
	raw := Name(b)
	if c == nil {
		return raw
	}
	decoded, err := c.enc.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// String returns the code page name.
func (c *NameCodec) String() string {
	if c == nil {
		return "raw"
	}
	return c.name
}

func normalizeEncoding(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(name)
}
