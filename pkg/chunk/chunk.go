// Package chunk implements the chunked record container shared by the PSK
// mesh and PSA animation formats.
//
// A chunk is a 32-byte header followed by DataCount records of DataSize
// bytes each:
//
//	ID        [20]byte  NUL-padded chunk name
//	TypeFlag  int32     always 1999801 on write
//	DataSize  int32     size of one record
//	DataCount int32     number of records
//
// All fields are little-endian.
package chunk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// TypeFlag is the constant written into every chunk header.
const TypeFlag int32 = 1999801

// Header layout sizes.
const (
	IDSize     = 20
	HeaderSize = IDSize + 12
)

// Chunk errors.
var (
	ErrTruncated  = errors.New("truncated chunk data")
	ErrMalformed  = errors.New("malformed chunk header")
	ErrRecordSize = errors.New("unexpected record size")
	ErrTypeFlag   = errors.New("unexpected chunk type flag")
)

// FormatError reports a chunk stream that cannot be read as declared.
// The whole read is aborted; no partial chunk is ever returned.
type FormatError struct {
	Chunk  string // chunk ID, empty if the header itself was unreadable
	Offset int64  // byte offset of the chunk header
	Err    error
}

func (e *FormatError) Error() string {
	if e.Chunk == "" {
		return fmt.Sprintf("chunk at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("chunk %q at offset %d: %v", e.Chunk, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Header is a decoded chunk header.
type Header struct {
	ID        string
	TypeFlag  int32
	DataSize  int32
	DataCount int32
}

// HasMagic reports whether the header carries the standard type flag.
func (h Header) HasMagic() bool {
	return h.TypeFlag == TypeFlag
}

// PayloadSize returns the number of bytes that follow the header.
func (h Header) PayloadSize() int64 {
	return int64(h.DataSize) * int64(h.DataCount)
}

// String returns a one-line description of the header.
func (h Header) String() string {
	return fmt.Sprintf("%-20s flag=%d size=%d count=%d", h.ID, h.TypeFlag, h.DataSize, h.DataCount)
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	PutName(buf[:IDSize], h.ID)
	binary.LittleEndian.PutUint32(buf[20:], uint32(h.TypeFlag))
	binary.LittleEndian.PutUint32(buf[24:], uint32(h.DataSize))
	binary.LittleEndian.PutUint32(buf[28:], uint32(h.DataCount))
	return buf
}

// Section accumulates fixed-size records for one chunk.
type Section struct {
	id         string
	recordSize int
	count      int
	data       bytes.Buffer
}

// NewSection creates an empty section for records of recordSize bytes.
func NewSection(id string, recordSize int) *Section {
	return &Section{id: id, recordSize: recordSize}
}

// Add appends one encoded record.
func (s *Section) Add(record []byte) error {
	if len(record) != s.recordSize {
		return fmt.Errorf("%w: chunk %s wants %d bytes, got %d", ErrRecordSize, s.id, s.recordSize, len(record))
	}
	s.data.Write(record)
	s.count++
	return nil
}

// Len returns the number of records added so far.
func (s *Section) Len() int {
	return s.count
}

// Header returns the chunk header with DataCount set to the records added.
func (s *Section) Header() Header {
	return Header{
		ID:        s.id,
		TypeFlag:  TypeFlag,
		DataSize:  int32(s.recordSize),
		DataCount: int32(s.count),
	}
}

// WriteTo writes the header followed by every record.
func (s *Section) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.Header().encode())
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(s.data.Bytes())
	return int64(n + m), err
}

// WriteChunk serializes a complete chunk.
func WriteChunk(id string, recordSize int, records [][]byte) ([]byte, error) {
	s := NewSection(id, recordSize)
	for _, rec := range records {
		if err := s.Add(rec); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reader reads chunks positionally from a stream.
type Reader struct {
	r      io.Reader
	offset int64

	// StrictTypeFlag rejects headers whose type flag is not TypeFlag.
	StrictTypeFlag bool
}

// NewReader returns a Reader positioned at the start of r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// ReadHeader reads the next chunk header. It returns io.EOF when the stream
// ends cleanly before a new header.
func (r *Reader) ReadHeader() (Header, error) {
	start := r.offset
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.r, buf)
	r.offset += int64(n)
	if err == io.EOF {
		return Header{}, io.EOF
	}
	if err != nil {
		return Header{}, &FormatError{Offset: start, Err: ErrTruncated}
	}

	h := Header{
		ID:        Name(buf[:IDSize]),
		TypeFlag:  int32(binary.LittleEndian.Uint32(buf[20:])),
		DataSize:  int32(binary.LittleEndian.Uint32(buf[24:])),
		DataCount: int32(binary.LittleEndian.Uint32(buf[28:])),
	}
	if h.DataSize < 0 || h.DataCount < 0 || (h.DataSize == 0 && h.DataCount > 0) {
		return h, &FormatError{Chunk: h.ID, Offset: start, Err: ErrMalformed}
	}
	if r.StrictTypeFlag && !h.HasMagic() {
		return h, &FormatError{Chunk: h.ID, Offset: start, Err: fmt.Errorf("%w: %d", ErrTypeFlag, h.TypeFlag)}
	}
	return h, nil
}

// ReadRecords reads exactly h.DataCount records of h.DataSize bytes.
// Memory grows with the bytes actually read, so a header declaring more
// data than the stream holds fails as truncated without allocating the
// declared size.
func (r *Reader) ReadRecords(h Header) ([][]byte, error) {
	start := r.offset
	var payload bytes.Buffer
	n, err := io.CopyN(&payload, r.r, h.PayloadSize())
	r.offset += n
	if err != nil {
		return nil, &FormatError{
			Chunk:  h.ID,
			Offset: start,
			Err:    fmt.Errorf("%w: record %d of %d", ErrTruncated, n/int64(h.DataSize), h.DataCount),
		}
	}
	data := payload.Bytes()
	size := int(h.DataSize)
	records := make([][]byte, h.DataCount)
	for i := range records {
		records[i] = data[i*size : (i+1)*size : (i+1)*size]
	}
	return records, nil
}

// ReadChunk reads a header and its records. A clean end of stream is
// reported as a truncation, since a chunk was expected.
func (r *Reader) ReadChunk() (Header, [][]byte, error) {
	start := r.offset
	h, err := r.ReadHeader()
	if err == io.EOF {
		return h, nil, &FormatError{Offset: start, Err: ErrTruncated}
	}
	if err != nil {
		return h, nil, err
	}
	records, err := r.ReadRecords(h)
	return h, records, err
}

// Skip discards the payload of h.
func (r *Reader) Skip(h Header) error {
	start := r.offset
	n, err := io.CopyN(io.Discard, r.r, h.PayloadSize())
	r.offset += n
	if err != nil {
		return &FormatError{Chunk: h.ID, Offset: start, Err: ErrTruncated}
	}
	return nil
}

// ReadHeader reads one chunk header from r.
func ReadHeader(r io.Reader) (Header, error) {
	return NewReader(r).ReadHeader()
}

// ReadRecords reads count records of size bytes from r.
func ReadRecords(r io.Reader, size, count int32) ([][]byte, error) {
	if size < 0 || count < 0 || (size == 0 && count > 0) {
		return nil, &FormatError{Err: ErrMalformed}
	}
	return NewReader(r).ReadRecords(Header{DataSize: size, DataCount: count})
}

// Scan lists every chunk header in r without interpreting the records.
func Scan(r io.Reader) ([]Header, error) {
	cr := NewReader(r)
	var headers []Header
	for {
		h, err := cr.ReadHeader()
		if err == io.EOF {
			return headers, nil
		}
		if err != nil {
			return headers, err
		}
		headers = append(headers, h)
		if err := cr.Skip(h); err != nil {
			return headers, err
		}
	}
}
