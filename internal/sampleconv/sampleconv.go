// Package sampleconv converts between raw little endian sample storage and
// per-channel float64 samples in [-1, 1).
package sampleconv

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is the encoding of a single sample.
type Kind int

const (
	KindU8 Kind = iota
	KindS16
	KindS24In32
	KindS24Packed
	KindS32
	KindFloat32
	KindFloat64
)

// Encoding is a sample kind plus its plane arrangement.
type Encoding struct {
	Kind   Kind
	Planar bool
}

// Size returns the byte size of one sample.
func (k Kind) Size() int {
	switch k {
	case KindU8:
		return 1
	case KindS16:
		return 2
	case KindS24Packed:
		return 3
	case KindS24In32, KindS32, KindFloat32:
		return 4
	case KindFloat64:
		return 8
	default:
		return 0
	}
}

// Full scale values.
const (
	scale8  = 1 << 7
	scale16 = 1 << 15
	scale24 = 1 << 23
	scale32 = 1 << 31
)

// offset returns the byte position of sample (channel ch, frame i).
func (e Encoding) offset(ch, i, channels int) (plane, pos int) {
	size := e.Kind.Size()
	if e.Planar {
		return ch, i * size
	}
	return 0, (i*channels + ch) * size
}

// Check verifies that planes can hold frames frames of channels channels.
func (e Encoding) Check(planes [][]byte, channels, frames int) error {
	size := e.Kind.Size()
	if size == 0 {
		return fmt.Errorf("unknown sample kind %d", e.Kind)
	}
	want, perPlane := 1, frames*channels*size
	if e.Planar {
		want, perPlane = channels, frames*size
	}
	if len(planes) < want {
		return fmt.Errorf("need %d planes, have %d", want, len(planes))
	}
	for i := range want {
		if len(planes[i]) < perPlane {
			return fmt.Errorf("plane %d holds %d bytes, need %d", i, len(planes[i]), perPlane)
		}
	}
	return nil
}

// Decode reads frames frames from src into dst, one slice per channel.
// Every dst slice must be at least frames long.
func Decode(dst [][]float64, src [][]byte, e Encoding, frames int) error {
	channels := len(dst)
	if err := e.Check(src, channels, frames); err != nil {
		return err
	}
	for ch := range channels {
		out := dst[ch][:frames]
		for i := range out {
			plane, pos := e.offset(ch, i, channels)
			out[i] = decodeOne(src[plane][pos:], e.Kind)
		}
	}
	return nil
}

// Encode writes frames frames from src (one slice per channel) into dst.
// Integer encodings clip to their range.
func Encode(dst [][]byte, src [][]float64, e Encoding, frames int) error {
	channels := len(src)
	if err := e.Check(dst, channels, frames); err != nil {
		return err
	}
	for ch := range channels {
		in := src[ch][:frames]
		for i, v := range in {
			plane, pos := e.offset(ch, i, channels)
			encodeOne(dst[plane][pos:], e.Kind, v)
		}
	}
	return nil
}

func decodeOne(b []byte, k Kind) float64 {
	switch k {
	case KindU8:
		return float64(int(b[0])-scale8) / scale8
	case KindS16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / scale16
	case KindS24In32:
		// Sign extend from bit 23.
		v := int32(binary.LittleEndian.Uint32(b)<<8) >> 8
		return float64(v) / scale24
	case KindS24Packed:
		v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
		return float64(v) / scale24
	case KindS32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / scale32
	case KindFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case KindFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return 0
	}
}

// quantize scales v to an integer range and clips it to [-full, full-1].
func quantize(v, full float64) int64 {
	x := math.Round(v * full)
	switch {
	case math.IsNaN(x):
		return 0
	case x > full-1:
		return int64(full - 1)
	case x < -full:
		return int64(-full)
	default:
		return int64(x)
	}
}

func encodeOne(b []byte, k Kind, v float64) {
	switch k {
	case KindU8:
		b[0] = byte(quantize(v, scale8) + scale8)
	case KindS16:
		binary.LittleEndian.PutUint16(b, uint16(int16(quantize(v, scale16))))
	case KindS24In32:
		binary.LittleEndian.PutUint32(b, uint32(int32(quantize(v, scale24))))
	case KindS24Packed:
		x := uint32(int32(quantize(v, scale24)))
		b[0], b[1], b[2] = byte(x), byte(x>>8), byte(x>>16)
	case KindS32:
		binary.LittleEndian.PutUint32(b, uint32(int32(quantize(v, scale32))))
	case KindFloat32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case KindFloat64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}
