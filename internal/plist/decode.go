package plist

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrMalformed is returned for any structurally invalid binary plist.
var ErrMalformed = errors.New("plist: malformed binary plist")

type decoder struct {
	data       []byte
	refSize    int
	offIntSize int
	offsets    []uint64
}

// Unmarshal parses a binary plist ("bplist00") and returns its root object:
// Dict, []interface{}, string, []byte, int64, float64, or bool.
func Unmarshal(data []byte) (interface{}, error) {
	if len(data) < 40 || string(data[:8]) != "bplist00" {
		return nil, ErrMalformed
	}
	trailer := data[len(data)-32:]
	offIntSize := int(trailer[6])
	refSize := int(trailer[7])
	numObjects := binary.BigEndian.Uint64(trailer[8:16])
	topObject := binary.BigEndian.Uint64(trailer[16:24])
	offsetTableOffset := binary.BigEndian.Uint64(trailer[24:32])

	if offIntSize == 0 || refSize == 0 || offsetTableOffset > uint64(len(data)) {
		return nil, ErrMalformed
	}

	d := &decoder{data: data, refSize: refSize, offIntSize: offIntSize}
	d.offsets = make([]uint64, numObjects)
	pos := offsetTableOffset
	for i := range d.offsets {
		v, err := readUint(data, pos, offIntSize)
		if err != nil {
			return nil, err
		}
		d.offsets[i] = v
		pos += uint64(offIntSize)
	}

	return d.readObject(topObject)
}

func readUint(data []byte, offset uint64, width int) (uint64, error) {
	if offset+uint64(width) > uint64(len(data)) {
		return 0, ErrMalformed
	}
	var v uint64
	for _, b := range data[offset : offset+uint64(width)] {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

func (d *decoder) readObject(ref uint64) (interface{}, error) {
	if ref >= uint64(len(d.offsets)) {
		return nil, ErrMalformed
	}
	pos := d.offsets[ref]
	if pos >= uint64(len(d.data)) {
		return nil, ErrMalformed
	}
	marker := d.data[pos]
	tag := marker & 0xF0
	low := marker & 0x0F
	pos++

	switch tag {
	case tagNull:
		switch marker {
		case tagFalse:
			return false, nil
		case tagTrue:
			return true, nil
		default:
			return nil, nil
		}
	case tagInt:
		n := 1 << low
		v, err := readUint(d.data, pos, n)
		if err != nil {
			return nil, err
		}
		return signExtend(v, n), nil
	case tagReal:
		n := 1 << low
		v, err := readUint(d.data, pos, n)
		if err != nil {
			return nil, err
		}
		if n == 8 {
			return math.Float64frombits(v), nil
		}
		return float64(math.Float32frombits(uint32(v))), nil
	case tagData:
		count, pos2, err := d.readCount(low, pos)
		if err != nil {
			return nil, err
		}
		if pos2+count > uint64(len(d.data)) {
			return nil, ErrMalformed
		}
		out := make([]byte, count)
		copy(out, d.data[pos2:pos2+count])
		return out, nil
	case tagASCII:
		count, pos2, err := d.readCount(low, pos)
		if err != nil {
			return nil, err
		}
		if pos2+count > uint64(len(d.data)) {
			return nil, ErrMalformed
		}
		return string(d.data[pos2 : pos2+count]), nil
	case tagArray:
		count, pos2, err := d.readCount(low, pos)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, count)
		for i := uint64(0); i < count; i++ {
			r, err := readUint(d.data, pos2+i*uint64(d.refSize), d.refSize)
			if err != nil {
				return nil, err
			}
			out[i], err = d.readObject(r)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case tagDict:
		count, pos2, err := d.readCount(low, pos)
		if err != nil {
			return nil, err
		}
		out := make(Dict, count)
		valsStart := pos2 + count*uint64(d.refSize)
		for i := uint64(0); i < count; i++ {
			kRef, err := readUint(d.data, pos2+i*uint64(d.refSize), d.refSize)
			if err != nil {
				return nil, err
			}
			vRef, err := readUint(d.data, valsStart+i*uint64(d.refSize), d.refSize)
			if err != nil {
				return nil, err
			}
			key, err := d.readObject(kRef)
			if err != nil {
				return nil, err
			}
			val, err := d.readObject(vRef)
			if err != nil {
				return nil, err
			}
			keyStr, ok := key.(string)
			if !ok {
				return nil, ErrMalformed
			}
			out[keyStr] = val
		}
		return out, nil
	default:
		return nil, ErrMalformed
	}
}

// readCount returns an object's element/byte count and the position right
// after the count, handling the "low nibble 0xF means the next object is an
// int giving the real count" extension.
func (d *decoder) readCount(low byte, pos uint64) (count, next uint64, err error) {
	if low != 0x0F {
		return uint64(low), pos, nil
	}
	if pos >= uint64(len(d.data)) {
		return 0, 0, ErrMalformed
	}
	sizeMarker := d.data[pos]
	if sizeMarker&0xF0 != tagInt {
		return 0, 0, ErrMalformed
	}
	n := 1 << (sizeMarker & 0x0F)
	v, err := readUint(d.data, pos+1, n)
	if err != nil {
		return 0, 0, err
	}
	return v, pos + 1 + uint64(n), nil
}

func signExtend(v uint64, width int) int64 {
	if width >= 8 {
		return int64(v)
	}
	shift := uint(64 - width*8)
	return int64(v<<shift) >> shift
}
