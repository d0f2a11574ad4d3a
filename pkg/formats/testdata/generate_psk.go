//go:build ignore

// This program generates a test PSK file for unit tests.
// Run with: go run generate_psk.go
package main

import (
	"bytes"
	"encoding/binary"
	"os"
)

const typeFlag = 1999801

func main() {
	var buf bytes.Buffer

	writeHeader(&buf, "ACTRHEAD", 0, 0)

	// One triangle in the XY plane
	writeHeader(&buf, "PNTS0000", 12, 3)
	for _, p := range [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}} {
		binary.Write(&buf, binary.LittleEndian, p)
	}

	writeHeader(&buf, "VTXW0000", 16, 3)
	for i, uv := range [][2]float32{{0, 1}, {1, 1}, {0, 0}} {
		binary.Write(&buf, binary.LittleEndian, uint16(i)) // point index
		binary.Write(&buf, binary.LittleEndian, uint16(0)) // padding
		binary.Write(&buf, binary.LittleEndian, uv)
		buf.Write([]byte{0, 0, 0, 0}) // material, reserved, padding
	}

	writeHeader(&buf, "FACE0000", 12, 1)
	binary.Write(&buf, binary.LittleEndian, [3]uint16{2, 1, 0})
	buf.Write([]byte{0, 0})
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // smoothing groups

	writeHeader(&buf, "MATT0000", 88, 1)
	buf.Write(name("skin"))
	buf.Write(make([]byte, 24))

	writeHeader(&buf, "REFSKELT", 120, 1)
	buf.Write(name("root"))
	binary.Write(&buf, binary.LittleEndian, uint32(0))              // flags
	binary.Write(&buf, binary.LittleEndian, int32(0))               // children
	binary.Write(&buf, binary.LittleEndian, int32(0))               // parent (self)
	binary.Write(&buf, binary.LittleEndian, [4]float32{0, 0, 0, 1}) // orientation
	binary.Write(&buf, binary.LittleEndian, [3]float32{0, 0, 0})    // position
	buf.Write(make([]byte, 16))                                     // length, extents

	writeHeader(&buf, "RAWWEIGHTS", 12, 3)
	for i := 0; i < 3; i++ {
		binary.Write(&buf, binary.LittleEndian, float32(1))
		binary.Write(&buf, binary.LittleEndian, int32(i))
		binary.Write(&buf, binary.LittleEndian, int32(0))
	}

	if err := os.WriteFile("test.psk", buf.Bytes(), 0644); err != nil {
		panic(err)
	}

	println("Generated test.psk:", buf.Len(), "bytes")
	println("  - 3 points, 3 wedges, 1 face")
	println("  - 1 material (skin), 1 bone (root), 3 weights")
}

func writeHeader(buf *bytes.Buffer, id string, size, count int32) {
	field := make([]byte, 20)
	copy(field, id)
	buf.Write(field)
	binary.Write(buf, binary.LittleEndian, int32(typeFlag))
	binary.Write(buf, binary.LittleEndian, size)
	binary.Write(buf, binary.LittleEndian, count)
}

func name(s string) []byte {
	field := make([]byte, 64)
	copy(field, s)
	return field
}
