package bufferpool

// SampleBuffer is a reference counted handle around one SoundPacket.
// The handle names its owning pool and its slot there; when the last
// reference is returned the buffer goes back to that pool's free list.
//
// Reference counts are not atomic. Callers on different goroutines must
// synchronize externally.
type SampleBuffer struct {
	Pkt *SoundPacket
	// Timestamp is the tick at which the buffer was produced.
	Timestamp int64

	refs int
	pool *BufferPool
	slot int
}

// Acquire adds a reference and returns the buffer.
func (b *SampleBuffer) Acquire() *SampleBuffer {
	b.refs++
	return b
}

// Return drops a reference. At zero the buffer is reclaimed by its pool.
// Calling Return without a matching Acquire (or GetFreeBuffer) is a
// contract violation.
func (b *SampleBuffer) Return() {
	b.refs--
	if b.pool != nil && b.refs <= 0 {
		b.pool.reclaim(b)
	}
}

// RefCount returns the current number of references.
func (b *SampleBuffer) RefCount() int {
	return b.refs
}

// Slot returns the index of the buffer in its owning pool, or -1 once the
// pool has been closed.
func (b *SampleBuffer) Slot() int {
	if b.pool == nil {
		return -1
	}
	return b.slot
}

// Owner returns the pool the buffer belongs to, or nil after the pool is closed.
func (b *SampleBuffer) Owner() *BufferPool {
	return b.pool
}

// Frames is a shorthand for the number of valid frames.
func (b *SampleBuffer) Frames() int {
	if b.Pkt == nil {
		return 0
	}
	return b.Pkt.Frames
}

// Duration returns the valid audio held by the buffer in seconds.
func (b *SampleBuffer) Duration() float64 {
	if b.Pkt == nil {
		return 0
	}
	return b.Pkt.Duration()
}
