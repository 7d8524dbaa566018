package modbus

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Float32 decodes a 32-bit IEEE-754 float from two consecutive
// big-endian registers (4 bytes).
func Float32(regs []byte) float32 {
	bits := binary.BigEndian.Uint32(regs)
	return math.Float32frombits(bits)
}

// EncodeFloat32 is the inverse of Float32: it encodes v into the same
// two-register, big-endian byte layout a write-multiple expects.
func EncodeFloat32(v float32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// Float64 decodes a 64-bit IEEE-754 float from four consecutive
// big-endian registers (8 bytes).
func Float64(regs []byte) float64 {
	bits := binary.BigEndian.Uint64(regs)
	return math.Float64frombits(bits)
}

// EncodeFloat64 is the inverse of Float64.
func EncodeFloat64(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// Uint32 decodes a 32-bit unsigned integer from two big-endian
// registers.
func Uint32(regs []byte) uint32 {
	return binary.BigEndian.Uint32(regs)
}

// EncodeUint32 is the inverse of Uint32.
func EncodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// Uint64 decodes a 64-bit unsigned integer from four big-endian
// registers.
func Uint64(regs []byte) uint64 {
	return binary.BigEndian.Uint64(regs)
}

// Uint16 decodes a single 16-bit unsigned register.
func Uint16(regs []byte) uint16 {
	return binary.BigEndian.Uint16(regs)
}

// EncodeUint16 is the inverse of Uint16.
func EncodeUint16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}

// ASCIIString decodes n registers (2*n bytes) as a null-terminated
// ASCII string, as used by the charger's mode-3 and identity
// registers.
func ASCIIString(regs []byte) string {
	if i := bytes.IndexByte(regs, 0); i >= 0 {
		regs = regs[:i]
	}
	return string(bytes.TrimRight(regs, "\x00 "))
}
