package bufferpool

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-audio/audio"
)

// DataFormat enumerates the sample encodings a packet can hold.
// All multi-byte formats are little endian.
type DataFormat int

const (
	// FormatInvalid is the zero value and never valid for a pool.
	FormatInvalid DataFormat = iota

	// Interleaved formats: one plane, channels alternate per frame.
	FormatU8
	FormatS16
	FormatS24In32 // 24 significant bits, LSB aligned, sign extended into 4 bytes
	FormatS24Packed
	FormatS32
	FormatFloat
	FormatDouble

	// Planar formats: one plane per channel.
	FormatU8P
	FormatS16P
	FormatS32P
	FormatFloatP
	FormatDoubleP

	// FormatRaw is an encoded bitstream (passthrough). It cannot be
	// sample addressed and is normalized to FormatS16 by pools.
	FormatRaw
)

var dataFormatNames = map[DataFormat]string{
	FormatInvalid:   "invalid",
	FormatU8:        "u8",
	FormatS16:       "s16",
	FormatS24In32:   "s24in32",
	FormatS24Packed: "s24packed",
	FormatS32:       "s32",
	FormatFloat:     "float",
	FormatDouble:    "double",
	FormatU8P:       "u8p",
	FormatS16P:      "s16p",
	FormatS32P:      "s32p",
	FormatFloatP:    "floatp",
	FormatDoubleP:   "doublep",
	FormatRaw:       "raw",
}

// String returns the short name of the format.
func (f DataFormat) String() string {
	if name, ok := dataFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("DataFormat(%d)", int(f))
}

// ParseDataFormat maps a short name back to a DataFormat.
func ParseDataFormat(name string) (DataFormat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range dataFormatNames {
		if n == name && f != FormatInvalid {
			return f, nil
		}
	}
	return FormatInvalid, fmt.Errorf("%w: unknown data format %q", ErrInvalidConfig, name)
}

// IsRaw reports whether the format is an encoded bitstream.
func (f DataFormat) IsRaw() bool {
	return f == FormatRaw
}

// IsPlanar reports whether each channel lives in its own plane.
func (f DataFormat) IsPlanar() bool {
	switch f {
	case FormatU8P, FormatS16P, FormatS32P, FormatFloatP, FormatDoubleP:
		return true
	default:
		return false
	}
}

// IsFloat reports whether samples are IEEE floating point.
func (f DataFormat) IsFloat() bool {
	switch f {
	case FormatFloat, FormatDouble, FormatFloatP, FormatDoubleP:
		return true
	default:
		return false
	}
}

// BytesPerSample returns the storage size of a single sample.
func (f DataFormat) BytesPerSample() int {
	switch f {
	case FormatU8, FormatU8P:
		return bytesPerSample8
	case FormatS16, FormatS16P, FormatRaw:
		return bytesPerSample16
	case FormatS24Packed:
		return bytesPerSample24
	case FormatS24In32, FormatS32, FormatS32P, FormatFloat, FormatFloatP:
		return bytesPerSample32
	case FormatDouble, FormatDoubleP:
		return bytesPerSample64
	default:
		return 0
	}
}

// UsedBits returns the number of significant bits per sample.
func (f DataFormat) UsedBits() int {
	switch f {
	case FormatS24In32, FormatS24Packed:
		return bitsPerSample24
	default:
		return f.BytesPerSample() * bitsPerByte
	}
}

// Channel identifies a speaker position.
type Channel int

// Speaker positions, in canonical order.
const (
	ChannelFL Channel = iota
	ChannelFR
	ChannelFC
	ChannelLFE
	ChannelBL
	ChannelBR
	ChannelBC
	ChannelSL
	ChannelSR
)

var channelNames = [...]string{"FL", "FR", "FC", "LFE", "BL", "BR", "BC", "SL", "SR"}

func (c Channel) String() string {
	if int(c) >= 0 && int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("CH%d", int(c))
}

// ChannelLayout is an ordered set of speaker positions.
type ChannelLayout []Channel

// Common layouts.
var (
	LayoutMono     = ChannelLayout{ChannelFC}
	LayoutStereo   = ChannelLayout{ChannelFL, ChannelFR}
	Layout2Point1  = ChannelLayout{ChannelFL, ChannelFR, ChannelLFE}
	LayoutQuad     = ChannelLayout{ChannelFL, ChannelFR, ChannelBL, ChannelBR}
	Layout5Point1  = ChannelLayout{ChannelFL, ChannelFR, ChannelFC, ChannelLFE, ChannelBL, ChannelBR}
	Layout7Point1  = ChannelLayout{ChannelFL, ChannelFR, ChannelFC, ChannelLFE, ChannelBL, ChannelBR, ChannelSL, ChannelSR}
	namedLayouts   = map[string]ChannelLayout{"mono": LayoutMono, "stereo": LayoutStereo, "2.1": Layout2Point1, "quad": LayoutQuad, "5.1": Layout5Point1, "7.1": Layout7Point1}
	defaultLayouts = []ChannelLayout{nil, LayoutMono, LayoutStereo, Layout2Point1, LayoutQuad, nil, Layout5Point1, nil, Layout7Point1}
)

// Count returns the number of channels.
func (l ChannelLayout) Count() int {
	return len(l)
}

// Equal reports whether both layouts contain the same channels in the same order.
func (l ChannelLayout) Equal(other ChannelLayout) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// Index returns the position of ch in the layout, or -1.
func (l ChannelLayout) Index(ch Channel) int {
	for i, c := range l {
		if c == ch {
			return i
		}
	}
	return -1
}

// Has reports whether the layout contains ch.
func (l ChannelLayout) Has(ch Channel) bool {
	return l.Index(ch) >= 0
}

func (l ChannelLayout) String() string {
	names := make([]string, len(l))
	for i, c := range l {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}

// ParseLayout resolves a named layout ("stereo", "5.1", ...).
func ParseLayout(name string) (ChannelLayout, error) {
	if l, ok := namedLayouts[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: unknown channel layout %q", ErrInvalidConfig, name)
}

// DefaultLayout returns the conventional layout for a channel count.
// Counts without a convention fall back to the first n canonical positions.
func DefaultLayout(channels int) ChannelLayout {
	if channels > 0 && channels < len(defaultLayouts) && defaultLayouts[channels] != nil {
		return defaultLayouts[channels]
	}
	l := make(ChannelLayout, 0, channels)
	for i := 0; i < channels; i++ {
		l = append(l, Channel(i))
	}
	return l
}

// AudioFormat describes a stream: rate, layout, encoding and block size.
type AudioFormat struct {
	SampleRate int
	Layout     ChannelLayout
	DataFormat DataFormat
	// Frames is the block size in frames of one buffer.
	Frames int
}

// Validate checks that the format can size a buffer.
func (f AudioFormat) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if f.Layout.Count() < 1 {
		return fmt.Errorf("%w: channel layout is empty", ErrInvalidConfig)
	}
	if f.Layout.Count() > maxChannels {
		return fmt.Errorf("%w: too many channels (max %d)", ErrInvalidConfig, maxChannels)
	}
	if f.Frames <= 0 {
		return fmt.Errorf("%w: frame block size must be positive", ErrInvalidConfig)
	}
	if f.DataFormat.BytesPerSample() == 0 {
		return fmt.Errorf("%w: unsupported data format %s", ErrInvalidConfig, f.DataFormat)
	}
	return nil
}

// Normalized replaces a raw bitstream format with FormatS16.
func (f AudioFormat) Normalized() AudioFormat {
	if f.DataFormat.IsRaw() {
		f.DataFormat = FormatS16
	}
	return f
}

// SameStream reports whether layout, rate and data format match, which is
// the condition under which no conversion is required.
func (f AudioFormat) SameStream(other AudioFormat) bool {
	return f.Layout.Equal(other.Layout) &&
		f.SampleRate == other.SampleRate &&
		f.DataFormat == other.DataFormat
}

// BufferDuration is the playback time of one full block.
func (f AudioFormat) BufferDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Frames) * time.Second / time.Duration(f.SampleRate)
}

// SampleConfig derives the packet descriptor for this format.
func (f AudioFormat) SampleConfig() SampleConfig {
	return SampleConfig{
		Format:     f.DataFormat,
		Bits:       f.DataFormat.UsedBits(),
		Channels:   f.Layout.Count(),
		SampleRate: f.SampleRate,
		Layout:     f.Layout,
	}
}

func (f AudioFormat) String() string {
	return fmt.Sprintf("%dHz %s [%s] %d frames", f.SampleRate, f.DataFormat, f.Layout, f.Frames)
}

// FormatFromPCM builds an interleaved integer AudioFormat from a go-audio
// format and bit depth, as reported by decoders like go-audio/wav.
func FormatFromPCM(pcm *audio.Format, bitDepth, frames int) (AudioFormat, error) {
	if pcm == nil {
		return AudioFormat{}, fmt.Errorf("%w: pcm format is nil", ErrInvalidConfig)
	}

	var df DataFormat
	switch bitDepth {
	case bitsPerSample8:
		df = FormatU8
	case bitsPerSample16:
		df = FormatS16
	case bitsPerSample24:
		df = FormatS24In32
	case bitsPerSample32:
		df = FormatS32
	default:
		return AudioFormat{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidConfig, bitDepth)
	}

	f := AudioFormat{
		SampleRate: pcm.SampleRate,
		Layout:     DefaultLayout(pcm.NumChannels),
		DataFormat: df,
		Frames:     frames,
	}
	return f, f.Validate()
}
