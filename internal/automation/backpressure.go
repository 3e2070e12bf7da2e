package automation

import (
	"sync"
	"time"
)

// Handoff is one pending delivery awaiting acknowledgement.
type Handoff struct {
	MID       string
	Receiver  string
	Sender    string
	Text      string
	Attempts  int
	SentAt    time.Time
}

// BackPressure tracks per-actor inflight/queued handoffs and drives the
// resend ticker (§4.4). Not present in the original Python implementation;
// specified fresh here against the same state-file conventions used
// elsewhere in this package.
type BackPressure struct {
	mu       sync.Mutex
	inflight map[string]*Handoff   // receiver -> current inflight handoff
	queued   map[string][]*Handoff // receiver -> FIFO queue
}

// NewBackPressure returns an empty tracker.
func NewBackPressure() *BackPressure {
	return &BackPressure{inflight: map[string]*Handoff{}, queued: map[string][]*Handoff{}}
}

// Offer attempts to deliver h immediately. If the receiver already has an
// inflight handoff, h is queued instead and Offer returns false.
func (b *BackPressure) Offer(h *Handoff) (deliverNow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.inflight[h.Receiver]; busy {
		b.queued[h.Receiver] = append(b.queued[h.Receiver], h)
		return false
	}
	h.SentAt = time.Now()
	h.Attempts = 1
	b.inflight[h.Receiver] = h
	return true
}

// Ack acknowledges the inflight handoff for receiver (the daemon calls it
// when the receiver's read cursor advances), promoting the next
// queued handoff to inflight if any. It returns the newly-promoted handoff,
// if one exists, so the caller can deliver it.
func (b *BackPressure) Ack(receiver string) *Handoff {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, receiver)
	return b.promoteLocked(receiver)
}

func (b *BackPressure) promoteLocked(receiver string) *Handoff {
	q := b.queued[receiver]
	if len(q) == 0 {
		return nil
	}
	next := q[0]
	b.queued[receiver] = q[1:]
	next.SentAt = time.Now()
	next.Attempts = 1
	b.inflight[receiver] = next
	return next
}

// ResendDecision is the outcome of a resend-ticker pass over one receiver's
// inflight handoff.
type ResendDecision struct {
	Resend  *Handoff // non-nil: redeliver this handoff, attempts already bumped
	Dropped *Handoff // non-nil: handoff-timeout-drop, and the next queued one (if any) was promoted
	Next    *Handoff // promoted replacement when Dropped is set
}

// Tick evaluates every inflight handoff against ackTimeout/resendAttempts,
// per the §4.4 resend model.
func (b *BackPressure) Tick(ackTimeout time.Duration, resendAttempts int) []ResendDecision {
	b.mu.Lock()
	defer b.mu.Unlock()

	var decisions []ResendDecision
	now := time.Now()
	for receiver, h := range b.inflight {
		if now.Sub(h.SentAt) < ackTimeout {
			continue
		}
		if h.Attempts < resendAttempts {
			h.Attempts++
			h.SentAt = now
			decisions = append(decisions, ResendDecision{Resend: h})
			continue
		}
		delete(b.inflight, receiver)
		next := b.promoteLocked(receiver)
		decisions = append(decisions, ResendDecision{Dropped: h, Next: next})
	}
	return decisions
}

// Inflight reports whether receiver currently has an unacked handoff.
func (b *BackPressure) Inflight(receiver string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.inflight[receiver]
	return ok
}

// QueueLen reports how many handoffs are queued behind receiver's inflight
// one.
func (b *BackPressure) QueueLen(receiver string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queued[receiver])
}
