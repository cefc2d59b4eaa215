package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	bp "github.com/tphakala/go-audio-bufferpool"
)

const (
	// Sample container sizes
	bitsPerSample8  = 8
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	bytesPerSample16 = 2
	bytesPerSample32 = 4

	stereoChannels = 2

	// wavPCMFormat is the WAVE_FORMAT_PCM tag.
	wavPCMFormat = 1
)

// parseQuality maps a quality name to a converter quality.
func parseQuality(q string) (bp.Quality, error) {
	switch strings.ToLower(q) {
	case "low":
		return bp.QualityLow, nil
	case "medium":
		return bp.QualityMedium, nil
	case "high", "":
		return bp.QualityHigh, nil
	case "veryhigh", "very-high":
		return bp.QualityVeryHigh, nil
	default:
		return 0, fmt.Errorf("unknown quality %q", q)
	}
}

// dataFormatForBits returns the interleaved integer format written for bits.
func dataFormatForBits(bits int) (bp.DataFormat, error) {
	switch bits {
	case bitsPerSample16:
		return bp.FormatS16, nil
	case bitsPerSample24:
		return bp.FormatS24In32, nil
	case bitsPerSample32:
		return bp.FormatS32, nil
	default:
		return bp.FormatInvalid, fmt.Errorf("unsupported output bit depth %d", bits)
	}
}

// outputOptions are the flags that shape the output format.
type outputOptions struct {
	rateKHz float64
	layout  string
	bits    int
	block   int
}

// outputFormat derives the sink format from the flags, taking rate and
// layout from the input where they are not set.
func outputFormat(in bp.AudioFormat, opts outputOptions) (bp.AudioFormat, error) {
	df, err := dataFormatForBits(opts.bits)
	if err != nil {
		return bp.AudioFormat{}, err
	}

	out := bp.AudioFormat{
		SampleRate: in.SampleRate,
		Layout:     in.Layout,
		DataFormat: df,
		Frames:     opts.block,
	}
	if opts.rateKHz > 0 {
		out.SampleRate = int(opts.rateKHz * kHzToHz)
	}
	if opts.layout != "" {
		layout, err := bp.ParseLayout(opts.layout)
		if err != nil {
			return bp.AudioFormat{}, err
		}
		out.Layout = layout
	}
	return out, out.Validate()
}

// putInts stores integer samples little endian in the container of df.
func putInts(dst []byte, samples []int, df bp.DataFormat) {
	switch df {
	case bp.FormatU8:
		for i, s := range samples {
			dst[i] = byte(s)
		}
	case bp.FormatS16:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(dst[i*bytesPerSample16:], uint16(int16(s)))
		}
	case bp.FormatS24In32, bp.FormatS32:
		for i, s := range samples {
			putUint32(dst[i*bytesPerSample32:], uint32(int32(s)))
		}
	}
}

// readInts is the inverse of putInts.
func readInts(dst []int, src []byte, df bp.DataFormat) {
	switch df {
	case bp.FormatU8:
		for i := range dst {
			dst[i] = int(src[i])
		}
	case bp.FormatS16:
		for i := range dst {
			dst[i] = int(int16(binary.LittleEndian.Uint16(src[i*bytesPerSample16:])))
		}
	case bp.FormatS24In32, bp.FormatS32:
		for i := range dst {
			dst[i] = int(int32(binary.LittleEndian.Uint32(src[i*bytesPerSample32:])))
		}
	}
}

func putUint32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

// wavOutputWriter encodes completed output buffers with go-audio/wav.
type wavOutputWriter struct {
	file    *os.File
	encoder *wav.Encoder
	format  bp.AudioFormat
	buf     *audio.IntBuffer
}

// createWAVOutput creates the output file for format.
func createWAVOutput(path string, format bp.AudioFormat) (*wavOutputWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	bits := format.DataFormat.UsedBits()
	channels := format.Layout.Count()
	return &wavOutputWriter{
		file:    file,
		encoder: wav.NewEncoder(file, format.SampleRate, bits, channels, wavPCMFormat),
		format:  format,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: format.SampleRate},
			Data:           make([]int, format.Frames*channels),
			SourceBitDepth: bits,
		},
	}, nil
}

// Write encodes the valid frames of b.
func (w *wavOutputWriter) Write(b *bp.SampleBuffer) error {
	n := b.Frames() * w.format.Layout.Count()
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
	readInts(w.buf.Data, b.Pkt.Data[0], w.format.DataFormat)
	if err := w.encoder.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (w *wavOutputWriter) Close() error {
	if err := w.encoder.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return w.file.Close()
}

// stats accumulates the frame counts of a run.
type stats struct {
	input      bp.AudioFormat
	output     bp.AudioFormat
	inFrames   int64
	outFrames  int64
	ticks      int64
	maxDelay   float64
	converter  bool
	processing bool
}

func (s *stats) observe(rp *bp.ResamplingPool) {
	s.maxDelay = max(s.maxDelay, rp.Delay())
}
