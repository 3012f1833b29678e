// Package bytesutil contains endian-safe readers/writers for the wire
// formats used across the AirPlay protocol stack, plus NTP <-> Unix
// timestamp conversion helpers.
package bytesutil

import (
	"encoding/binary"
	"math"
)

// SecondsFrom1900To1970 is the offset between the NTP epoch (1900) and the
// Unix epoch (1970), in seconds.
const SecondsFrom1900To1970 = 2208988800

// GetShortLE reads a little-endian uint16 at offset.
func GetShortLE(b []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(b[offset:])
}

// GetIntLE reads a little-endian uint32 at offset.
func GetIntLE(b []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(b[offset:])
}

// GetLongLE reads a little-endian uint64 at offset.
func GetLongLE(b []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(b[offset:])
}

// GetShortBE reads a big-endian uint16 at offset.
func GetShortBE(b []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(b[offset:])
}

// GetIntBE reads a big-endian uint32 at offset.
func GetIntBE(b []byte, offset int) uint32 {
	return binary.BigEndian.Uint32(b[offset:])
}

// GetLongBE reads a big-endian uint64 at offset.
func GetLongBE(b []byte, offset int) uint64 {
	return binary.BigEndian.Uint64(b[offset:])
}

// GetFloatLE reads a little-endian IEEE-754 float32 at offset, the layout
// used by the mirror-stream header's width/height fields.
func GetFloatLE(b []byte, offset int) float32 {
	return math.Float32frombits(GetIntLE(b, offset))
}

// PutIntLE writes a little-endian uint32 at offset.
func PutIntLE(b []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(b[offset:], v)
}

// PutShortBE writes a big-endian uint16 at offset.
func PutShortBE(b []byte, offset int, v uint16) {
	binary.BigEndian.PutUint16(b[offset:], v)
}

// PutIntBE writes a big-endian uint32 at offset.
func PutIntBE(b []byte, offset int, v uint32) {
	binary.BigEndian.PutUint32(b[offset:], v)
}

// PutLongBE writes a big-endian uint64 at offset.
func PutLongBE(b []byte, offset int, v uint64) {
	binary.BigEndian.PutUint64(b[offset:], v)
}

// GetNTPTimestamp reads a 32-byte-packet-style NTP fixed-point timestamp
// (seconds since 1900 in the high 32 bits, fractional seconds in the low 32
// bits) at offset and returns microseconds since the Unix epoch.
func GetNTPTimestamp(b []byte, offset int) uint64 {
	v := GetLongBE(b, offset)
	seconds := (v >> 32) - SecondsFrom1900To1970
	frac := v & 0xFFFFFFFF
	return seconds*1000000 + (frac*1000000)>>32
}

// GetNTPTimestampNoEpoch reads an NTP-format fixed-point timestamp whose
// high 32 bits are already seconds in the receiver's own reference epoch
// (no 1900-to-1970 conversion), as mirror-stream packets carry — see
// spec.md §4.8's "since last boot" note.
func GetNTPTimestampNoEpoch(v uint64) uint64 {
	seconds := v >> 32
	frac := v & 0xFFFFFFFF
	return seconds*1000000 + (frac*1000000)>>32
}

// PutNTPTimestamp writes usSince1970 microseconds-since-Unix-epoch at offset
// in NTP fixed-point format.
func PutNTPTimestamp(b []byte, offset int, usSince1970 uint64) {
	seconds := usSince1970/1000000 + SecondsFrom1900To1970
	remainderUs := usSince1970 % 1000000
	frac := (remainderUs << 32) / 1000000
	PutLongBE(b, offset, seconds<<32|frac)
}
