package bufferpool

// bufferQueue is a FIFO of buffers. The consumed prefix is compacted
// lazily so steady-state push/pop does not allocate.
type bufferQueue struct {
	items []*SampleBuffer
	head  int
}

func (q *bufferQueue) push(b *SampleBuffer) {
	if q.head > 0 && len(q.items) == cap(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	q.items = append(q.items, b)
}

func (q *bufferQueue) pop() *SampleBuffer {
	if q.head >= len(q.items) {
		return nil
	}
	b := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return b
}

func (q *bufferQueue) len() int {
	return len(q.items) - q.head
}

func (q *bufferQueue) empty() bool {
	return q.len() == 0
}

// each visits queued buffers front to back.
func (q *bufferQueue) each(fn func(*SampleBuffer)) {
	for _, b := range q.items[q.head:] {
		fn(b)
	}
}

// drain pops every buffer and hands it to fn.
func (q *bufferQueue) drain(fn func(*SampleBuffer)) {
	for b := q.pop(); b != nil; b = q.pop() {
		fn(b)
	}
}
