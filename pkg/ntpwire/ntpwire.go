// Package ntpwire encodes and decodes the 64-bit NTP fixed-point timestamps
// carried in AirPlay's timing, audio-control and mirror-video packets.
package ntpwire

import (
	"encoding/binary"
	"math"
	"time"
)

// secondsFrom1900To1970 is the offset between the NTP epoch (1900) and the
// Unix epoch (1970), in seconds.
const secondsFrom1900To1970 = 2208988800

// Encode encodes t as a 64-bit NTP fixed-point timestamp.
func Encode(t time.Time) uint64 {
	ntp := uint64(t.UnixNano()) + secondsFrom1900To1970*1000000000
	secs := ntp / 1000000000
	fractional := uint64(math.Round(float64((ntp%1000000000)*(1<<32)) / 1000000000))
	return secs<<32 | fractional
}

// Decode decodes a 64-bit NTP fixed-point timestamp into a time.Time.
func Decode(v uint64) time.Time {
	secs := int64((v >> 32) - secondsFrom1900To1970)
	nanos := int64(math.Round(float64(((v & 0xFFFFFFFF) * 1000000000)) / (1 << 32)))
	return time.Unix(secs, nanos)
}

// MicrosSinceUnixEpoch converts an NTP fixed-point timestamp into
// microseconds-since-Unix-epoch. When appleEpoch is true, v is interpreted
// per the AirPlay timing-port convention (seconds since 1900) and the
// 1900->1970 offset is subtracted; when false, the seconds field is used
// as is. internal/ntpsync always passes true; the mirror stream's "time
// since last boot" timestamps are decoded by
// bytesutil.GetNTPTimestampNoEpoch instead.
func MicrosSinceUnixEpoch(v uint64, appleEpoch bool) int64 {
	seconds := int64(v >> 32)
	if appleEpoch {
		seconds -= secondsFrom1900To1970
	}
	frac := v & 0xFFFFFFFF
	return seconds*1000000 + int64((frac*1000000)>>32)
}

// FromMicros builds a 64-bit NTP fixed-point timestamp out of
// microseconds-since-Unix-epoch.
func FromMicros(us int64, appleEpoch bool) uint64 {
	seconds := us / 1000000
	if appleEpoch {
		seconds += secondsFrom1900To1970
	}
	remainderUs := us % 1000000
	if remainderUs < 0 {
		remainderUs += 1000000
		seconds--
	}
	frac := (uint64(remainderUs) << 32) / 1000000
	return uint64(seconds)<<32 | frac
}

// PutTimestamp writes usSinceUnixEpoch as an 8-byte big-endian NTP
// timestamp into b at offset, the layout the timing-port request/response
// packets carry at bytes 8, 16 and 24.
func PutTimestamp(b []byte, offset int, usSinceUnixEpoch uint64, appleEpoch bool) {
	binary.BigEndian.PutUint64(b[offset:offset+8], FromMicros(int64(usSinceUnixEpoch), appleEpoch))
}

// ReadTimestamp reads an 8-byte big-endian NTP timestamp from b at offset
// and returns it as microseconds since the Unix epoch.
func ReadTimestamp(b []byte, offset int, appleEpoch bool) uint64 {
	v := binary.BigEndian.Uint64(b[offset : offset+8])
	return uint64(MicrosSinceUnixEpoch(v, appleEpoch))
}
