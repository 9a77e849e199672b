package tracectx

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
)

// spanIDBatch is the number of span ids produced by one random read.
const spanIDBatch = 64

// IDPool hands out span ids generated ahead of time. A background filler
// turns one crypto/rand read into a batch of ids, so taking an id is a
// channel receive. When the pool is empty Get generates inline and counts
// a miss.
type IDPool struct {
	ids      chan string
	stop     chan struct{}
	done     chan struct{}
	read     func([]byte) (int, error)
	misses   atomic.Uint64
	stopOnce sync.Once
}

// NewIDPool creates a pool holding up to capacity ready span ids.
func NewIDPool(capacity int) *IDPool {
	return newIDPool(capacity, rand.Read)
}

func newIDPool(capacity int, read func([]byte) (int, error)) *IDPool {
	if capacity < 1 {
		capacity = 1
	}
	p := &IDPool{
		ids:  make(chan string, capacity),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		read: read,
	}
	go p.fill()
	return p
}

// Get returns a span id. Safe to call after Close.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		p.misses.Add(1)
		return GenerateSpanID()
	}
}

// Misses is the number of ids Get had to generate inline.
func (p *IDPool) Misses() uint64 {
	return p.misses.Load()
}

// fill queues ids until Close. All-zero slices of the batch are skipped.
// A failed read stops the filler; Get keeps working on the inline path.
func (p *IDPool) fill() {
	defer close(p.done)

	buf := make([]byte, 8*spanIDBatch)
	for {
		if _, err := p.read(buf); err != nil {
			return
		}
		for i := 0; i < len(buf); i += 8 {
			raw := buf[i : i+8]
			if zeroBytes(raw) {
				continue
			}
			select {
			case p.ids <- hex.EncodeToString(raw):
			case <-p.stop:
				return
			}
		}
	}
}

func zeroBytes(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Close stops the filler and waits for it to exit. Ids already queued are
// still handed out. Subsequent calls are no-ops.
func (p *IDPool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}
