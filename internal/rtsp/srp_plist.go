package rtsp

import (
	"fmt"

	"github.com/antimof/UxPlay-sub000/internal/plist"
)

// buildSRPPlist renders pair-pin-start's response: the SRP salt and the
// server's ephemeral public key B.
func buildSRPPlist(salt, serverPub []byte) ([]byte, error) {
	return plist.Marshal(plist.Dict{
		"salt": salt,
		"pk":   serverPub,
	})
}

// parseSRPConfirmPlist extracts pair-pin-confirm's request fields: the
// client's ephemeral public key A, its proof M1, and its encrypted
// long-term Ed25519 public key plus GCM auth tag.
func parseSRPConfirmPlist(body []byte) (clientPubA, clientProofM1, encClientEdPub, authTag []byte, err error) {
	v, err := plist.Unmarshal(body)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	dict, ok := v.(plist.Dict)
	if !ok {
		return nil, nil, nil, nil, fmt.Errorf("rtsp: pair-pin-confirm body is not a dictionary")
	}

	clientPubA, err = plistData(dict, "pk")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	clientProofM1, err = plistData(dict, "proof")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	encClientEdPub, err = plistData(dict, "epk")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	authTag, err = plistData(dict, "authTag")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return clientPubA, clientProofM1, encClientEdPub, authTag, nil
}

// buildSRPConfirmResponsePlist renders pair-pin-confirm's response: the
// server's proof M2 and its own encrypted long-term Ed25519 public key.
func buildSRPConfirmResponsePlist(proofM2, encServerEdPub []byte) ([]byte, error) {
	return plist.Marshal(plist.Dict{
		"proof": proofM2,
		"epk":   encServerEdPub,
	})
}

// plistData extracts a required []byte field from a decoded plist
// dictionary, the data-blob equivalent of plistString below.
func plistData(dict plist.Dict, key string) ([]byte, error) {
	v, present := dict[key]
	if !present {
		return nil, fmt.Errorf("rtsp: plist missing required field %q", key)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("rtsp: plist field %q is not a data blob", key)
	}
	return b, nil
}

// plistString extracts a required string field from a decoded plist
// dictionary.
func plistString(dict plist.Dict, key string) (string, error) {
	v, present := dict[key]
	if !present {
		return "", fmt.Errorf("rtsp: plist missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("rtsp: plist field %q is not a string", key)
	}
	return s, nil
}

// plistInt extracts a required integer field (any plist numeric type,
// normalized to int64) from a decoded plist dictionary.
func plistInt(dict plist.Dict, key string) (int64, error) {
	v, present := dict[key]
	if !present {
		return 0, fmt.Errorf("rtsp: plist missing required field %q", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("rtsp: plist field %q is not numeric", key)
}

// plistFloat extracts an optional float field, returning def if absent.
func plistFloat(dict plist.Dict, key string, def float64) float64 {
	v, present := dict[key]
	if !present {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return def
}
