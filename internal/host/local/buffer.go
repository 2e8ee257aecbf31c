package local

import "sync"

// ringBuffer is a thread-safe circular byte buffer. Writes past capacity
// overwrite the oldest bytes; Drain returns and clears everything buffered.
type ringBuffer struct {
	data []byte
	size int
	head int
	tail int
	full bool
	mu   sync.Mutex
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]byte, size),
		size: size,
	}
}

func (b *ringBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		b.data[b.tail] = c
		b.tail = (b.tail + 1) % b.size
		if b.full {
			b.head = b.tail
		}
		if b.tail == b.head {
			b.full = true
		}
	}

	return len(p), nil
}

// Drain returns all buffered bytes and resets the buffer.
func (b *ringBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head == b.tail && !b.full {
		return nil
	}

	var result []byte
	if b.tail > b.head {
		result = make([]byte, b.tail-b.head)
		copy(result, b.data[b.head:b.tail])
	} else {
		first := b.data[b.head:]
		second := b.data[:b.tail]
		result = make([]byte, len(first)+len(second))
		copy(result, first)
		copy(result[len(first):], second)
	}

	b.head = b.tail
	b.full = false
	return result
}
