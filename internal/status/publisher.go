package status

import (
	"sync"
	"time"

	"livetrader-go/internal/metrics"
)

// Publisher is the single-producer side of a bounded snapshot channel. When the consumer
// falls behind, the oldest queued snapshot is discarded so the newest always gets through
// and delivery order is preserved.
type Publisher struct {
	ch chan Snapshot

	mu      sync.Mutex
	seq     uint64
	dropped uint64
}

// NewPublisher buffers up to size snapshots; size < 1 selects 1.
func NewPublisher(size int) *Publisher {
	if size < 1 {
		size = 1
	}
	return &Publisher{ch: make(chan Snapshot, size)}
}

// C is the consumer side. Exactly one goroutine should read it.
func (p *Publisher) C() <-chan Snapshot { return p.ch }

// Publish stamps the snapshot with the next sequence number and enqueues it without blocking.
func (p *Publisher) Publish(s Snapshot) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	s.Seq = p.seq
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	for {
		select {
		case p.ch <- s:
			return s
		default:
		}
		select {
		case <-p.ch:
			p.dropped++
			metrics.SnapshotsDropped.Inc()
		default:
		}
	}
}

// Dropped counts snapshots discarded before the consumer saw them.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
