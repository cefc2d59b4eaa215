package bufferpool

import "fmt"

// Quality selects a converter fidelity/performance tradeoff.
type Quality int

const (
	// QualityLow favours CPU over fidelity.
	QualityLow Quality = iota
	// QualityMedium is suitable for general playback.
	QualityMedium
	// QualityHigh is the recommended default.
	QualityHigh
	// QualityVeryHigh uses the longest filters.
	QualityVeryHigh
)

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	case QualityVeryHigh:
		return "veryhigh"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// ConverterConfig describes a rate/format/layout conversion.
type ConverterConfig struct {
	DstLayout   ChannelLayout
	DstChannels int
	DstRate     int
	DstFormat   DataFormat
	DstBits     int

	SrcLayout   ChannelLayout
	SrcChannels int
	SrcRate     int
	SrcFormat   DataFormat
	SrcBits     int

	Upmix     bool
	Normalize bool
	// RemapLayout, when non-nil, is the explicit channel order of the output.
	RemapLayout ChannelLayout
	Quality     Quality
}

// Converter converts blocks of samples between two stream formats.
// Implementations may buffer internally.
type Converter interface {
	// Init configures the converter. It is called once per instance.
	Init(cfg ConverterConfig) error

	// Resample converts srcFrames frames from src and writes at most
	// dstFrames frames into dst. src is nil when the pool has no input for
	// the call. ratio scales the nominal output rate
	// for drift correction. It returns the number of frames written.
	Resample(dst [][]byte, dstFrames int, src [][]byte, srcFrames int, ratio float64) (int, error)

	// BufferedFrames approximates the frames held internally, in output frames.
	BufferedFrames() int
}

// Drainer is implemented by converters holding look-ahead that only the
// end of the stream can release. The pool calls Drain once no further
// input will reach the converter, ahead of the calls that empty it.
// Converters without Drain treat every call without input as a drain.
type Drainer interface {
	Drain()
}

// ConverterFactory returns a fresh, uninitialized Converter.
type ConverterFactory func() Converter

// converterConfig builds the converter configuration for src -> dst.
func converterConfig(dst, src AudioFormat, upmix, normalize bool, remap ChannelLayout, quality Quality) ConverterConfig {
	return ConverterConfig{
		DstLayout:   dst.Layout,
		DstChannels: dst.Layout.Count(),
		DstRate:     dst.SampleRate,
		DstFormat:   dst.DataFormat,
		DstBits:     dst.DataFormat.UsedBits(),
		SrcLayout:   src.Layout,
		SrcChannels: src.Layout.Count(),
		SrcRate:     src.SampleRate,
		SrcFormat:   src.DataFormat,
		SrcBits:     src.DataFormat.UsedBits(),
		Upmix:       upmix,
		Normalize:   normalize,
		RemapLayout: remap,
		Quality:     quality,
	}
}
