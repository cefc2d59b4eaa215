package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"

	bp "github.com/tphakala/go-audio-bufferpool"
)

// source decodes a file block by block straight into sound packets.
type source interface {
	// Format is the format of the packets filled by Read.
	Format() bp.AudioFormat
	// Read fills pkt from its first frame and returns the frame count.
	// It returns io.EOF together with the last (possibly zero) frames.
	Read(pkt *bp.SoundPacket) (int, error)
	Close() error
}

type openFunc func(f *os.File, block int) (source, error)

// decoders maps file extensions to decoders.
var decoders = map[string]openFunc{
	".wav":  openWAV,
	".mp3":  openMP3,
	".ogg":  openOgg,
	".oga":  openOgg,
	".flac": openFLAC,
}

// openSource picks a decoder by extension.
func openSource(path string, block int) (source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	open, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported input format %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	src, err := open(f, block)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

// fileSource closes the underlying file.
type fileSource struct {
	file   *os.File
	format bp.AudioFormat
}

func (s *fileSource) Format() bp.AudioFormat { return s.format }
func (s *fileSource) Close() error           { return s.file.Close() }

// wavSource reads integer PCM through go-audio/wav.
type wavSource struct {
	fileSource
	dec *wav.Decoder
	buf *audio.IntBuffer
}

func openWAV(f *os.File, block int) (source, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", f.Name())
	}
	pcm := dec.Format()
	format, err := bp.FormatFromPCM(pcm, int(dec.BitDepth), block)
	if err != nil {
		return nil, err
	}
	return &wavSource{
		fileSource: fileSource{file: f, format: format},
		dec:        dec,
		buf: &audio.IntBuffer{
			Data:   make([]int, block*pcm.NumChannels),
			Format: pcm,
		},
	}, nil
}

func (s *wavSource) Read(pkt *bp.SoundPacket) (int, error) {
	s.buf.Data = s.buf.Data[:cap(s.buf.Data)]
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read audio data: %w", err)
	}
	channels := s.format.Layout.Count()
	frames := n / channels
	putInts(pkt.Data[0], s.buf.Data[:frames*channels], s.format.DataFormat)
	if frames == 0 {
		return 0, io.EOF
	}
	return frames, nil
}

// mp3Source copies the decoder's 16-bit stereo output unchanged.
type mp3Source struct {
	fileSource
	dec *gomp3.Decoder
}

func openMP3(f *os.File, block int) (source, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("invalid MP3 file: %w", err)
	}
	format := bp.AudioFormat{
		SampleRate: dec.SampleRate(),
		Layout:     bp.LayoutStereo,
		DataFormat: bp.FormatS16,
		Frames:     block,
	}
	return &mp3Source{fileSource: fileSource{file: f, format: format}, dec: dec}, nil
}

func (s *mp3Source) Read(pkt *bp.SoundPacket) (int, error) {
	frameSize := bytesPerSample16 * stereoChannels
	n, err := io.ReadFull(s.dec, pkt.Data[0][:pkt.MaxFrames*frameSize])
	frames := n / frameSize
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return frames, io.EOF
	case err != nil:
		return frames, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return frames, nil
}

// oggSource stores decoded Vorbis as interleaved float32.
type oggSource struct {
	fileSource
	dec *oggvorbis.Reader
	buf []float32
}

func openOgg(f *os.File, block int) (source, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("invalid Ogg Vorbis file: %w", err)
	}
	format := bp.AudioFormat{
		SampleRate: dec.SampleRate(),
		Layout:     bp.DefaultLayout(dec.Channels()),
		DataFormat: bp.FormatFloat,
		Frames:     block,
	}
	return &oggSource{
		fileSource: fileSource{file: f, format: format},
		dec:        dec,
		buf:        make([]float32, block*dec.Channels()),
	}, nil
}

func (s *oggSource) Read(pkt *bp.SoundPacket) (int, error) {
	channels := s.format.Layout.Count()
	values := 0
	var err error
	// Read returns at most one Vorbis packet per call.
	for values < len(s.buf) && err == nil {
		var n int
		n, err = s.dec.Read(s.buf[values:])
		values += n
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}

	dst := pkt.Data[0]
	for i, v := range s.buf[:values] {
		putFloat32(dst[i*bytesPerSample32:], v)
	}
	return values / channels, err
}

// flacSource interleaves FLAC subframes, keeping the rest of a frame
// that did not fit for the next Read.
type flacSource struct {
	fileSource
	stream *flac.Stream
	shift  uint
	carry  []int
}

func openFLAC(f *os.File, block int) (source, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("invalid FLAC file: %w", err)
	}
	bits := int(stream.Info.BitsPerSample)
	container := containerBits(bits)
	pcm := &audio.Format{
		NumChannels: int(stream.Info.NChannels),
		SampleRate:  int(stream.Info.SampleRate),
	}
	format, err := bp.FormatFromPCM(pcm, container, block)
	if err != nil {
		return nil, err
	}
	return &flacSource{
		fileSource: fileSource{file: f, format: format},
		stream:     stream,
		shift:      uint(container - bits),
	}, nil
}

func (s *flacSource) Read(pkt *bp.SoundPacket) (int, error) {
	channels := s.format.Layout.Count()
	want := pkt.MaxFrames * channels

	var err error
	for len(s.carry) < want {
		frame, perr := s.stream.ParseNext()
		if perr != nil {
			err = perr
			break
		}
		for i := range int(frame.BlockSize) {
			for ch := range channels {
				s.carry = append(s.carry, int(frame.Subframes[ch].Samples[i])<<s.shift)
			}
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	n := min(want, len(s.carry))
	putInts(pkt.Data[0], s.carry[:n], s.format.DataFormat)
	s.carry = s.carry[:copy(s.carry, s.carry[n:])]
	if err != nil && len(s.carry) == 0 {
		return n / channels, io.EOF
	}
	return n / channels, nil
}

// containerBits rounds a FLAC bit depth up to a signed sample container.
func containerBits(bits int) int {
	switch {
	case bits <= bitsPerSample16:
		return bitsPerSample16
	case bits <= bitsPerSample24:
		return bitsPerSample24
	default:
		return bitsPerSample32
	}
}

func putFloat32(dst []byte, v float32) {
	putUint32(dst, math.Float32bits(v))
}
