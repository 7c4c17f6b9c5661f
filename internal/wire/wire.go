// Package wire holds the byte-order helpers shared by the shapefile and
// index codecs. Shapefiles mix big-endian integers with little-endian
// doubles inside a single header, so each accessor names its byte order.
package wire

import (
	"encoding/binary"
	"math"
)

// Float64LE decodes a little-endian IEEE 754 double.
func Float64LE(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Float64BE decodes a big-endian IEEE 754 double.
func Float64BE(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

// PutFloat64LE encodes v as a little-endian IEEE 754 double.
func PutFloat64LE(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

// Int32LE decodes a little-endian signed 32-bit integer.
func Int32LE(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

// Int32BE decodes a big-endian signed 32-bit integer.
func Int32BE(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}

// PutInt32LE encodes v as a little-endian 32-bit integer.
func PutInt32LE(b []byte, v int32) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

// PutInt32BE encodes v as a big-endian 32-bit integer.
func PutInt32BE(b []byte, v int32) {
	binary.BigEndian.PutUint32(b, uint32(v))
}

// Grow returns b resliced to n bytes, reallocating only when the
// capacity is insufficient.
func Grow(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}
