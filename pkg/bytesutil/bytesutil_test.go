package bytesutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLittleEndianReadWrite(t *testing.T) {
	buf := make([]byte, 8)
	PutIntLE(buf, 0, 0x01020304)
	require.EqualValues(t, 0x01020304, GetIntLE(buf, 0))
	require.EqualValues(t, 0x0304, GetShortLE(buf, 0))
}

func TestBigEndianReadWrite(t *testing.T) {
	buf := make([]byte, 8)
	PutIntBE(buf, 0, 0x01020304)
	require.EqualValues(t, 0x01020304, GetIntBE(buf, 0))

	PutShortBE(buf, 4, 0xABCD)
	require.EqualValues(t, 0xABCD, GetShortBE(buf, 4))

	PutLongBE(buf, 0, 0x0102030405060708)
	require.EqualValues(t, 0x0102030405060708, GetLongBE(buf, 0))
}

func TestGetFloatLE(t *testing.T) {
	buf := make([]byte, 4)
	PutIntLE(buf, 0, 0x3F800000) // IEEE-754 1.0
	require.Equal(t, float32(1.0), GetFloatLE(buf, 0))
}

func TestNTPTimestampRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	const usSince1970 = uint64(1_700_000_000_500_000) // arbitrary, sub-second precision
	PutNTPTimestamp(buf, 0, usSince1970)

	got := GetNTPTimestamp(buf, 0)
	require.InDelta(t, usSince1970, got, 1) // fixed-point rounding
}

func TestGetNTPTimestampNoEpoch(t *testing.T) {
	// 10 seconds, no fractional part, no 1900 offset applied
	v := uint64(10) << 32
	require.EqualValues(t, 10_000_000, GetNTPTimestampNoEpoch(v))
}
