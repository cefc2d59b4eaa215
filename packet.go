package bufferpool

import (
	"fmt"
)

// SampleConfig describes the samples stored in a packet.
type SampleConfig struct {
	Format     DataFormat
	Bits       int
	Channels   int
	SampleRate int
	Layout     ChannelLayout
}

// Storage is the result of an allocation: the planes and their geometry.
type Storage struct {
	Data           [][]byte
	BytesPerSample int
	Planes         int
	// Linesize is the byte stride of every plane.
	Linesize int
}

// Allocator provides sample storage for packets. It is injected into pools
// instead of being looked up globally.
type Allocator interface {
	AllocSampleStorage(cfg SampleConfig, frames int) (Storage, error)
	FreeSampleStorage(data [][]byte)
}

// HeapAllocator allocates planes on the Go heap.
// A non-zero MaxBytes caps the total outstanding allocation; requests
// beyond it fail with ErrAllocation.
type HeapAllocator struct {
	MaxBytes int64

	used int64
	size map[*byte]int64
}

// NewHeapAllocator returns an allocator with an optional byte budget (0 = unlimited).
func NewHeapAllocator(maxBytes int64) *HeapAllocator {
	return &HeapAllocator{MaxBytes: maxBytes, size: make(map[*byte]int64)}
}

// AllocSampleStorage allocates one plane per channel for planar formats and a
// single interleaved plane otherwise. Strides are rounded up to storageAlignment.
func (a *HeapAllocator) AllocSampleStorage(cfg SampleConfig, frames int) (Storage, error) {
	bps := cfg.Format.BytesPerSample()
	if bps == 0 || cfg.Channels < 1 || frames < 1 {
		return Storage{}, fmt.Errorf("%w: cannot size %d frames of %s x%d",
			ErrAllocation, frames, cfg.Format, cfg.Channels)
	}

	planes := 1
	samplesPerPlane := frames * cfg.Channels
	if cfg.Format.IsPlanar() {
		planes = cfg.Channels
		samplesPerPlane = frames
	}
	linesize := alignUp(samplesPerPlane*bps, storageAlignment)

	total := int64(planes * linesize)
	if a.MaxBytes > 0 && a.used+total > a.MaxBytes {
		return Storage{}, fmt.Errorf("%w: budget of %d bytes exhausted", ErrAllocation, a.MaxBytes)
	}

	// One backing array keeps the planes of a packet contiguous.
	backing := make([]byte, total)
	data := make([][]byte, planes)
	for i := range planes {
		data[i] = backing[i*linesize : (i+1)*linesize : (i+1)*linesize]
	}

	if a.size == nil {
		a.size = make(map[*byte]int64)
	}
	a.size[&backing[0]] = total
	a.used += total

	return Storage{
		Data:           data,
		BytesPerSample: bps,
		Planes:         planes,
		Linesize:       linesize,
	}, nil
}

// FreeSampleStorage releases the budget held by data.
func (a *HeapAllocator) FreeSampleStorage(data [][]byte) {
	if len(data) == 0 || len(data[0]) == 0 {
		return
	}
	key := &data[0][0]
	if n, ok := a.size[key]; ok {
		a.used -= n
		delete(a.size, key)
	}
}

// Used returns the number of bytes currently allocated.
func (a *HeapAllocator) Used() int64 {
	return a.used
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// SoundPacket is a fixed-capacity block of raw samples.
type SoundPacket struct {
	Config         SampleConfig
	Data           [][]byte
	BytesPerSample int
	Planes         int
	Linesize       int
	MaxFrames      int
	// Frames is the number of valid frames, never above MaxFrames.
	Frames int

	alloc Allocator
}

// NewSoundPacket allocates storage for frames frames of cfg.
func NewSoundPacket(cfg SampleConfig, frames int, alloc Allocator) (*SoundPacket, error) {
	st, err := alloc.AllocSampleStorage(cfg, frames)
	if err != nil {
		return nil, err
	}
	return &SoundPacket{
		Config:         cfg,
		Data:           st.Data,
		BytesPerSample: st.BytesPerSample,
		Planes:         st.Planes,
		Linesize:       st.Linesize,
		MaxFrames:      frames,
		alloc:          alloc,
	}, nil
}

// Free releases the storage. The packet must not be used afterwards.
func (p *SoundPacket) Free() {
	if p.Data != nil && p.alloc != nil {
		p.alloc.FreeSampleStorage(p.Data)
	}
	p.Data = nil
	p.Frames = 0
}

// Space returns how many more frames fit.
func (p *SoundPacket) Space() int {
	return p.MaxFrames - p.Frames
}

// Full reports whether the packet holds MaxFrames frames.
func (p *SoundPacket) Full() bool {
	return p.Frames >= p.MaxFrames
}

// ByteOffset returns the per-plane byte offset of frame index frames.
func (p *SoundPacket) ByteOffset(frames int) int {
	return frames * p.BytesPerSample * p.Config.Channels / p.Planes
}

// WritePlanes returns every plane sliced from the first free frame.
func (p *SoundPacket) WritePlanes() [][]byte {
	start := p.ByteOffset(p.Frames)
	planes := make([][]byte, p.Planes)
	for i := range p.Planes {
		planes[i] = p.Data[i][start:]
	}
	return planes
}

// ZeroTail clears every plane after the valid frames.
func (p *SoundPacket) ZeroTail() {
	start := p.ByteOffset(p.Frames)
	for i := range p.Planes {
		clear(p.Data[i][start:])
	}
}

// Duration returns the length of the valid frames in seconds.
func (p *SoundPacket) Duration() float64 {
	if p.Config.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames) / float64(p.Config.SampleRate)
}
