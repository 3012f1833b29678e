package ntpwire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var cases = []struct {
	name string
	dec  time.Time
	enc  uint64
}{
	{
		"a",
		time.Date(2013, 4, 15, 11, 15, 17, 958404853, time.UTC).Local(),
		15354565283395798332,
	},
	{
		"b",
		time.Date(2013, 4, 15, 11, 15, 18, 0, time.UTC).Local(),
		15354565283574448128,
	},
}

func TestEncode(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			v := Encode(ca.dec)
			require.Equal(t, ca.enc, v)
		})
	}
}

func TestDecode(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			v := Decode(ca.enc)
			require.Equal(t, ca.dec, v)
		})
	}
}

func TestMicrosSinceUnixEpochRoundTrip(t *testing.T) {
	us := int64(1700000000 * 1000000)
	v := FromMicros(us, true)
	require.Equal(t, us, MicrosSinceUnixEpoch(v, true))

	v = FromMicros(us, false)
	require.Equal(t, us, MicrosSinceUnixEpoch(v, false))
}

func TestPutReadTimestampRoundTrip(t *testing.T) {
	buf := make([]byte, 32)
	us := int64(1700000000 * 1000000)
	PutTimestamp(buf, 24, uint64(us), true)
	require.Equal(t, uint64(us), ReadTimestamp(buf, 24, true))
}
