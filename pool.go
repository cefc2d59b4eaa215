package bufferpool

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Common errors returned by pools.
var (
	// ErrInvalidConfig indicates invalid configuration parameters.
	ErrInvalidConfig = errors.New("invalid buffer pool configuration")

	// ErrAllocation indicates that sample storage could not be allocated.
	ErrAllocation = errors.New("sample storage allocation failed")

	// ErrConverterInit indicates the converter rejected its configuration.
	ErrConverterInit = errors.New("converter initialization failed")

	// ErrNoConverter indicates a conversion is required but no converter factory was supplied.
	ErrNoConverter = errors.New("conversion required but no converter available")

	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = errors.New("buffer pool closed")

	// ErrForeignBuffer indicates a buffer was released to a pool that does not own it.
	ErrForeignBuffer = errors.New("buffer not owned by this pool")
)

// BufferPool pre-allocates buffers for one audio format and recycles them.
type BufferPool struct {
	format AudioFormat
	alloc  Allocator
	logger *zap.Logger

	all    []*SampleBuffer
	free   bufferQueue
	inFree []bool // indexed by slot
	closed bool

	metrics     *Metrics
	metricsName string
}

// NewBufferPool creates an empty pool for format. A raw bitstream format is
// normalized to a sample addressable one. A nil alloc selects a HeapAllocator
// and a nil logger disables logging.
func NewBufferPool(format AudioFormat, alloc Allocator, logger *zap.Logger) *BufferPool {
	if alloc == nil {
		alloc = NewHeapAllocator(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferPool{
		format: format.Normalized(),
		alloc:  alloc,
		logger: logger,
	}
}

// Create populates the pool with enough buffers to hold total of audio,
// and never fewer than five.
func (p *BufferPool) Create(total time.Duration) error {
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.format.Validate(); err != nil {
		return err
	}
	perBuffer := p.format.BufferDuration()
	if perBuffer <= 0 {
		return fmt.Errorf("%w: block of %d frames at %d Hz has no duration",
			ErrInvalidConfig, p.format.Frames, p.format.SampleRate)
	}

	cfg := p.format.SampleConfig()
	var accumulated time.Duration
	for n := 0; accumulated < total || n < minPoolBuffers; n++ {
		pkt, err := NewSoundPacket(cfg, p.format.Frames, p.alloc)
		if err != nil {
			p.logger.Warn("buffer pool population failed",
				zap.Int("allocated", len(p.all)),
				zap.Error(err))
			return fmt.Errorf("failed to allocate buffer %d: %w", n, err)
		}
		b := &SampleBuffer{Pkt: pkt, pool: p, slot: len(p.all)}
		p.all = append(p.all, b)
		p.inFree = append(p.inFree, true)
		p.free.push(b)
		accumulated += perBuffer
	}

	p.logger.Debug("buffer pool populated",
		zap.Stringer("format", p.format),
		zap.Int("buffers", len(p.all)),
		zap.Duration("buffered", accumulated))
	p.observe()
	return nil
}

// GetFreeBuffer hands out a free buffer holding one reference, or nil when
// none is free. A nil result is backpressure, not an error.
func (p *BufferPool) GetFreeBuffer() *SampleBuffer {
	b := p.free.pop()
	if b == nil {
		return nil
	}
	p.inFree[b.slot] = false
	b.refs = 1
	p.observe()
	return b
}

// reclaim puts b back on the free list. Reached from SampleBuffer.Return.
func (p *BufferPool) reclaim(b *SampleBuffer) {
	if p.inFree[b.slot] {
		return
	}
	b.Pkt.Frames = 0
	b.refs = 0
	p.inFree[b.slot] = true
	p.free.push(b)
	p.observe()
}

// Release returns the caller's reference to b after checking that b
// belongs to this pool.
func (p *BufferPool) Release(b *SampleBuffer) error {
	if b == nil {
		return nil
	}
	if b.pool != p || b.slot >= len(p.all) || p.all[b.slot] != b {
		return ErrForeignBuffer
	}
	b.Return()
	return nil
}

// Format returns the (normalized) format of the pool's buffers.
func (p *BufferPool) Format() AudioFormat {
	return p.format
}

// Len returns the number of buffers owned by the pool.
func (p *BufferPool) Len() int {
	return len(p.all)
}

// FreeCount returns the number of buffers available.
func (p *BufferPool) FreeCount() int {
	return p.free.len()
}

// HasFree reports whether GetFreeBuffer would succeed.
func (p *BufferPool) HasFree() bool {
	return !p.free.empty()
}

// Close frees all storage and detaches every buffer from the pool, so a
// late Return on an outstanding handle is harmless.
func (p *BufferPool) Close() {
	if p.closed {
		return
	}
	for _, b := range p.all {
		b.pool = nil
		b.Pkt.Free()
	}
	p.all = nil
	p.inFree = nil
	p.free = bufferQueue{}
	p.closed = true
	p.observe()
}

// SetMetrics attaches a metrics sink; name labels this pool's series.
// A nil m detaches it.
func (p *BufferPool) SetMetrics(m *Metrics, name string) {
	p.metrics = m
	p.metricsName = name
	p.observe()
}

func (p *BufferPool) observe() {
	if p.metrics == nil {
		return
	}
	p.metrics.observePool(p.metricsName, len(p.all), p.free.len())
}
