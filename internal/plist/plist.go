// Package plist reads and writes Apple property lists in both the binary
// ("bplist00") and XML encodings AirPlay uses on the wire: device-info
// descriptors, SETUP bodies, HLS /play and /action payloads, and the
// server-initiated FCUP Request envelope. No plist library exists anywhere
// in the retrieved example corpus (see DESIGN.md); this is a from-scratch,
// deliberately narrow implementation covering the subset AirPlay actually
// sends: dictionaries, arrays, strings, data blobs, signed integers,
// floating-point reals and booleans. Dates and Unicode (UTF-16) strings are
// not produced or consumed by anything in this server.
package plist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Dict is a property-list dictionary. Values may be Dict, []interface{},
// string, []byte, int64 (or any Go integer type, normalized on Marshal),
// float64, or bool.
type Dict map[string]interface{}

// bplist00 object type tags, high nibble of the marker byte.
const (
	tagNull  = 0x00
	tagFalse = 0x08
	tagTrue  = 0x09
	tagInt   = 0x10
	tagReal  = 0x20
	tagData  = 0x40
	tagASCII = 0x50
	tagArray = 0xA0
	tagDict  = 0xD0
)

// ---- Marshal (binary) ----

type encoder struct {
	objects   []interface{}
	byteOfObj [][]byte
}

// Marshal encodes v (normally a Dict) as a binary plist ("bplist00").
func Marshal(v interface{}) ([]byte, error) {
	e := &encoder{}
	root := e.intern(v)

	e.byteOfObj = make([][]byte, len(e.objects))
	for i, obj := range e.objects {
		b, err := e.encodeObject(obj)
		if err != nil {
			return nil, err
		}
		e.byteOfObj[i] = b
	}

	var buf bytes.Buffer
	buf.WriteString("bplist00")

	offsets := make([]uint64, len(e.objects))
	for i, b := range e.byteOfObj {
		offsets[i] = uint64(buf.Len())
		buf.Write(b)
	}

	offsetTableOffset := uint64(buf.Len())
	refSize := byteWidth(len(e.objects))
	offIntSize := byteWidth(int(offsetTableOffset) + 1)
	for _, off := range offsets {
		writeUint(&buf, off, offIntSize)
	}

	var trailer [32]byte
	trailer[6] = byte(offIntSize)
	trailer[7] = byte(refSize)
	binary.BigEndian.PutUint64(trailer[8:16], uint64(len(e.objects)))
	binary.BigEndian.PutUint64(trailer[16:24], uint64(root))
	binary.BigEndian.PutUint64(trailer[24:32], offsetTableOffset)
	buf.Write(trailer[:])

	return buf.Bytes(), nil
}

// intern assigns object indices depth-first, each container before its
// children, and returns v's index. Every leaf gets its own object;
// identical strings or ints are not deduplicated.
func (e *encoder) intern(v interface{}) int {
	switch t := v.(type) {
	case Dict:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		idx := len(e.objects)
		e.objects = append(e.objects, nil) // reserve slot
		keyRefs := make([]int, len(keys))
		valRefs := make([]int, len(keys))
		for i, k := range keys {
			keyRefs[i] = e.intern(k)
			valRefs[i] = e.intern(t[k])
		}
		e.objects[idx] = dictNode{keyRefs, valRefs}
		return idx
	case []interface{}:
		idx := len(e.objects)
		e.objects = append(e.objects, nil)
		refs := make([]int, len(t))
		for i, item := range t {
			refs[i] = e.intern(item)
		}
		e.objects[idx] = arrayNode(refs)
		return idx
	default:
		idx := len(e.objects)
		e.objects = append(e.objects, v)
		return idx
	}
}

type dictNode struct {
	keyRefs, valRefs []int
}
type arrayNode []int

func (e *encoder) encodeObject(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte{tagNull}, nil
	case bool:
		if t {
			return []byte{tagTrue}, nil
		}
		return []byte{tagFalse}, nil
	case string:
		return encodeASCIIString(t), nil
	case []byte:
		return encodeData(t), nil
	case float32:
		return encodeReal(float64(t)), nil
	case float64:
		return encodeReal(t), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return encodeInt(toInt64(t)), nil
	case dictNode:
		refSize := byteWidth(len(e.objects))
		var buf bytes.Buffer
		buf.WriteByte(countMarker(tagDict, len(t.keyRefs)))
		if len(t.keyRefs) >= 15 {
			writeSizeExtension(&buf, len(t.keyRefs))
		}
		for _, r := range t.keyRefs {
			writeUint(&buf, uint64(r), refSize)
		}
		for _, r := range t.valRefs {
			writeUint(&buf, uint64(r), refSize)
		}
		return buf.Bytes(), nil
	case arrayNode:
		refSize := byteWidth(len(e.objects))
		var buf bytes.Buffer
		buf.WriteByte(countMarker(tagArray, len(t)))
		if len(t) >= 15 {
			writeSizeExtension(&buf, len(t))
		}
		for _, r := range t {
			writeUint(&buf, uint64(r), refSize)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("plist: unsupported value type %T", v)
	}
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	}
	return 0
}

// countMarker packs tag|count into one byte when count < 15, else marks
// 0x?F; the caller then writes the real count as an int right after the
// marker (writeSizeExtension), as strings, data, dicts and arrays of 15 or
// more elements do.
func countMarker(tag byte, count int) byte {
	if count >= 15 {
		count = 15
	}
	return tag | byte(count)
}

func encodeASCIIString(s string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(countMarker(tagASCII, len(s)))
	if len(s) >= 15 {
		writeSizeExtension(&buf, len(s))
	}
	buf.WriteString(s)
	return buf.Bytes()
}

func encodeData(d []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(countMarker(tagData, len(d)))
	if len(d) >= 15 {
		writeSizeExtension(&buf, len(d))
	}
	buf.Write(d)
	return buf.Bytes()
}

func writeSizeExtension(buf *bytes.Buffer, n int) {
	sizeBytes := encodeInt(int64(n))
	buf.Write(sizeBytes)
}

func encodeInt(v int64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagInt | 0x03) // always the 8-byte form
	binary.Write(&buf, binary.BigEndian, v) //nolint:errcheck
	return buf.Bytes()
}

func encodeReal(v float64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagReal | 0x03) // 8-byte double
	binary.Write(&buf, binary.BigEndian, math.Float64bits(v)) //nolint:errcheck
	return buf.Bytes()
}

func byteWidth(n int) int {
	switch {
	case n <= 0xFF:
		return 1
	case n <= 0xFFFF:
		return 2
	case n <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

func writeUint(buf *bytes.Buffer, v uint64, width int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[8-width:])
}
