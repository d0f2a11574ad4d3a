// Package formats reads and writes the PSK skeletal mesh and PSA animation
// files.
//
// Both files are sequences of chunks (see package chunk) in a fixed order.
// Readers are positional: chunk IDs are reported but never used to
// dispatch, so a file with reordered chunks misparses.
package formats

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Faultbox/skelconv/pkg/chunk"
)

// Options controls how PSK and PSA files are read.
type Options struct {
	// Names decodes fixed-length name fields. Nil copies bytes unchanged.
	Names *chunk.NameCodec
	// StrictTypeFlag rejects chunk headers without the standard type flag.
	StrictTypeFlag bool
}

// chunkSpec describes one chunk of a fixed file layout.
type chunkSpec struct {
	id   string
	size int
}

// decodeAll reads the next chunk and decodes each of its records. The
// record size is checked before any payload is read.
func decodeAll[T any](r *chunk.Reader, want chunkSpec, decode func([]byte) (T, error)) ([]T, error) {
	start := r.Offset()
	h, err := r.ReadHeader()
	if err == io.EOF {
		return nil, &chunk.FormatError{Offset: start, Err: chunk.ErrTruncated}
	}
	if err != nil {
		return nil, err
	}
	if h.DataCount > 0 && int(h.DataSize) != want.size {
		return nil, &chunk.FormatError{
			Chunk:  h.ID,
			Offset: start,
			Err:    fmt.Errorf("%w: %s records are %d bytes, want %d", chunk.ErrRecordSize, want.id, h.DataSize, want.size),
		}
	}
	records, err := r.ReadRecords(h)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for i, rec := range records {
		v, err := decode(rec)
		if err != nil {
			return nil, &chunk.FormatError{Chunk: h.ID, Offset: start, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		out = append(out, v)
	}
	return out, nil
}

// skipChunk reads the next header and discards its payload.
func skipChunk(r *chunk.Reader) error {
	start := r.Offset()
	h, err := r.ReadHeader()
	if err == io.EOF {
		return &chunk.FormatError{Offset: start, Err: chunk.ErrTruncated}
	}
	if err != nil {
		return err
	}
	return r.Skip(h)
}

// writeSection encodes records into a new section and appends it to buf.
func writeSection[T any](buf *bytes.Buffer, spec chunkSpec, items []T, encode func(T) []byte) error {
	s := chunk.NewSection(spec.id, spec.size)
	for _, item := range items {
		if err := s.Add(encode(item)); err != nil {
			return err
		}
	}
	_, err := s.WriteTo(buf)
	return err
}

// writeHeader writes an empty chunk that opens a file.
func writeHeader(buf *bytes.Buffer, spec chunkSpec) error {
	_, err := chunk.NewSection(spec.id, spec.size).WriteTo(buf)
	return err
}
