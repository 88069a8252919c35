package stream

// ring is a fixed-capacity buffer holding the most recent messages of one
// session, oldest overwritten first.
type ring struct {
	buf  []Message
	head int // next write position
	n    int // stored count, 0..cap
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{buf: make([]Message, capacity)}
}

func (r *ring) append(m Message) {
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// snapshot returns a copy of the buffered messages, oldest to newest.
func (r *ring) snapshot() []Message {
	if r.n == 0 {
		return nil
	}
	out := make([]Message, 0, r.n)
	start := r.head - r.n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
