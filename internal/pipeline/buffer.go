// Package pipeline holds the per-channel sample queues that sit between the
// mixing, rate conversion and encoding steps of a converter.
package pipeline

// RingBuffer implements a circular buffer for the samples of one channel.
// It grows on demand and is not safe for concurrent use.
type RingBuffer struct {
	data     []float64
	size     int
	readPos  int
	writePos int
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{data: make([]float64, capacity)}
}

// Write appends samples, growing the buffer when needed.
func (b *RingBuffer) Write(samples []float64) {
	needed := len(samples)
	if needed == 0 {
		return
	}
	if b.size+needed > len(b.data) {
		b.grow(b.size + needed)
	}

	// At most two copies: up to the end of data, then from the start.
	n := copy(b.data[b.writePos:], samples)
	if n < needed {
		copy(b.data, samples[n:])
	}
	b.writePos = (b.writePos + needed) % len(b.data)
	b.size += needed
}

// Read moves up to len(dst) samples into dst and returns how many were read.
func (b *RingBuffer) Read(dst []float64) int {
	n := min(len(dst), b.size)
	if n == 0 {
		return 0
	}

	first := copy(dst[:n], b.data[b.readPos:])
	if first < n {
		copy(dst[first:n], b.data)
	}
	b.readPos = (b.readPos + n) % len(b.data)
	b.size -= n
	return n
}

// Available returns the number of samples available for reading.
func (b *RingBuffer) Available() int {
	return b.size
}

// Capacity returns the current buffer capacity.
func (b *RingBuffer) Capacity() int {
	return len(b.data)
}

// Clear removes all samples from the buffer.
func (b *RingBuffer) Clear() {
	b.size = 0
	b.readPos = 0
	b.writePos = 0
}

// grow increases the buffer capacity to at least minCapacity.
func (b *RingBuffer) grow(minCapacity int) {
	newCapacity := len(b.data)
	for newCapacity < minCapacity {
		newCapacity *= bufferGrowthFactor
	}

	newData := make([]float64, newCapacity)
	if b.size > 0 {
		n := copy(newData, b.data[b.readPos:min(b.readPos+b.size, len(b.data))])
		if n < b.size {
			copy(newData[n:b.size], b.data)
		}
	}

	b.data = newData
	b.readPos = 0
	b.writePos = b.size
}

// FrameFIFO keeps one RingBuffer per channel so that channels stay frame
// aligned.
type FrameFIFO struct {
	chans []*RingBuffer
}

// NewFrameFIFO creates a FIFO for channels channels with an initial
// capacity in frames.
func NewFrameFIFO(channels, capacity int) *FrameFIFO {
	f := &FrameFIFO{chans: make([]*RingBuffer, channels)}
	for i := range f.chans {
		f.chans[i] = NewRingBuffer(capacity)
	}
	return f
}

// Write appends one slice per channel. All slices must have the same length.
func (f *FrameFIFO) Write(planes [][]float64) {
	for i, ch := range f.chans {
		ch.Write(planes[i])
	}
}

// Read moves up to n frames into dst (one slice per channel, each at least
// n long) and returns the number of frames read.
func (f *FrameFIFO) Read(dst [][]float64, n int) int {
	n = min(n, f.Available())
	for i, ch := range f.chans {
		ch.Read(dst[i][:n])
	}
	return n
}

// Available returns the number of complete frames queued.
func (f *FrameFIFO) Available() int {
	if len(f.chans) == 0 {
		return 0
	}
	return f.chans[0].Available()
}

// Channels returns the channel count.
func (f *FrameFIFO) Channels() int {
	return len(f.chans)
}

// Clear drops all queued frames.
func (f *FrameFIFO) Clear() {
	for _, ch := range f.chans {
		ch.Clear()
	}
}
