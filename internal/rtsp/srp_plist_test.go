package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimof/UxPlay-sub000/internal/plist"
)

func TestBuildAndParseSRPPlistRoundTrip(t *testing.T) {
	salt := []byte{1, 2, 3, 4}
	serverPub := []byte{5, 6, 7, 8}

	body, err := buildSRPPlist(salt, serverPub)
	require.NoError(t, err)

	v, err := plist.Unmarshal(body)
	require.NoError(t, err)
	dict := v.(plist.Dict)

	gotSalt, err := plistData(dict, "salt")
	require.NoError(t, err)
	require.Equal(t, salt, gotSalt)

	gotPub, err := plistData(dict, "pk")
	require.NoError(t, err)
	require.Equal(t, serverPub, gotPub)
}

func TestParseSRPConfirmPlistRoundTrip(t *testing.T) {
	body, err := plist.Marshal(plist.Dict{
		"pk":      []byte{1},
		"proof":   []byte{2},
		"epk":     []byte{3},
		"authTag": []byte{4},
	})
	require.NoError(t, err)

	pk, proof, epk, tag, err := parseSRPConfirmPlist(body)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, pk)
	require.Equal(t, []byte{2}, proof)
	require.Equal(t, []byte{3}, epk)
	require.Equal(t, []byte{4}, tag)
}

func TestParseSRPConfirmPlistMissingFieldErrors(t *testing.T) {
	body, err := plist.Marshal(plist.Dict{"pk": []byte{1}})
	require.NoError(t, err)

	_, _, _, _, err = parseSRPConfirmPlist(body)
	require.Error(t, err)
}

func TestParseSRPConfirmPlistRejectsNonDictBody(t *testing.T) {
	body, err := plist.Marshal("not a dict")
	require.NoError(t, err)

	_, _, _, _, err = parseSRPConfirmPlist(body)
	require.Error(t, err)
}

func TestBuildSRPConfirmResponsePlist(t *testing.T) {
	body, err := buildSRPConfirmResponsePlist([]byte{9, 9}, []byte{8, 8})
	require.NoError(t, err)

	v, err := plist.Unmarshal(body)
	require.NoError(t, err)
	dict := v.(plist.Dict)

	proof, err := plistData(dict, "proof")
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, proof)
}

func TestPlistIntAndFloatHelpers(t *testing.T) {
	dict := plist.Dict{
		"intField":   int64(42),
		"floatAsInt": float64(7),
		"floatField": float64(1.5),
	}

	n, err := plistInt(dict, "intField")
	require.NoError(t, err)
	require.EqualValues(t, 42, n)

	n, err = plistInt(dict, "floatAsInt")
	require.NoError(t, err)
	require.EqualValues(t, 7, n)

	_, err = plistInt(dict, "missing")
	require.Error(t, err)

	require.Equal(t, 1.5, plistFloat(dict, "floatField", 0))
	require.Equal(t, 9.0, plistFloat(dict, "missing", 9.0))
}
