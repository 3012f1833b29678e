package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestX25519SharedSecretMatches(t *testing.T) {
	a, err := GenerateX25519Key()
	require.NoError(t, err)
	b, err := GenerateX25519Key()
	require.NoError(t, err)

	s1, err := a.DeriveSecret(X25519KeyFromRaw(b.Raw()))
	require.NoError(t, err)
	s2, err := b.DeriveSecret(X25519KeyFromRaw(a.Raw()))
	require.NoError(t, err)
	require.Equal(t, s1, s2)
}

func TestEd25519DeterministicFromDeviceID(t *testing.T) {
	k1, err := LoadOrGenerateEd25519Key("AA:BB:CC:DD:EE:FF", "")
	require.NoError(t, err)
	k2, err := LoadOrGenerateEd25519Key("AA:BB:CC:DD:EE:FF", "")
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := LoadOrGenerateEd25519Key("11:22:33:44:55:66", "")
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}

func TestCTRChunkingMatchesSingleCall(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	plaintext := []byte("the quick brown fox jumps over the lazy dog, twice!!")

	whole, err := NewCTR(key, iv)
	require.NoError(t, err)
	wantCT := make([]byte, len(plaintext))
	whole.XORKeyStream(wantCT, plaintext)

	chunked, err := NewCTR(key, iv)
	require.NoError(t, err)
	gotCT := make([]byte, len(plaintext))
	chunkSizes := []int{1, 5, 16, 3, 100}
	off := 0
	for _, sz := range chunkSizes {
		end := off + sz
		if end > len(plaintext) {
			end = len(plaintext)
		}
		chunked.XORKeyStream(gotCT[off:end], plaintext[off:end])
		off = end
		if off >= len(plaintext) {
			break
		}
	}
	require.Equal(t, wantCT, gotCT)
}

func TestCBCRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	plain := make([]byte, 32)
	for i := range plain {
		plain[i] = byte(i * 3)
	}

	ct, err := CBCEncrypt(key, iv, plain)
	require.NoError(t, err)
	pt, err := CBCDecrypt(key, iv, ct)
	require.NoError(t, err)
	require.Equal(t, plain, pt)
}
