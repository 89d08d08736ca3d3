package status

import (
	"sync"
	"time"
)

// Notices is a bounded ring of recent notices. Every snapshot carries a copy, so a
// dropped snapshot never loses a notice that a later one still holds.
type Notices struct {
	mu   sync.Mutex
	buf  []Notice
	next int
	full bool
	seq  uint64
	now  func() time.Time
}

// NewNotices keeps the most recent capacity notices; capacity < 1 selects 50.
func NewNotices(capacity int) *Notices {
	if capacity < 1 {
		capacity = 50
	}
	return &Notices{buf: make([]Notice, capacity), now: time.Now}
}

// Add records a notice and returns it with its sequence number.
func (n *Notices) Add(kind NoticeKind, symbol, msg string) Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	note := Notice{Seq: n.seq, Time: n.now(), Kind: kind, Symbol: symbol, Message: msg}
	n.buf[n.next] = note
	n.next = (n.next + 1) % len(n.buf)
	if n.next == 0 {
		n.full = true
	}
	return note
}

// Recent returns held notices, oldest first.
func (n *Notices) Recent() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.full {
		return append([]Notice(nil), n.buf[:n.next]...)
	}
	out := make([]Notice, 0, len(n.buf))
	out = append(out, n.buf[n.next:]...)
	return append(out, n.buf[:n.next]...)
}
