// Package eventbus provides the daemon's in-process EVENT_BROADCASTER
// singleton: a loopback-only, non-durable publish/subscribe fan-out of
// ledger-append notifications to the automation ticker, attached CLI
// watchers, and bridge processes. Grounded on the teacher's
// internal/eventbus (types.go/nats.go), re-implemented against an embedded
// NATS server instead of a remote deployment, and deliberately never
// configured with JetStream persistence — per the spec's Non-goals, this
// is not a durable queue.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Topic names mirror ledger event kinds, namespaced by group.
const (
	TopicLedgerAppended = "cccc.ledger.appended"
	TopicGroupChanged   = "cccc.group.changed"
)

// Event is a broadcaster message: a topic plus an arbitrary JSON-ish
// payload (typically a model.Event or a small status struct).
type Event struct {
	Topic   string
	GroupID string
	Data    []byte
}

// Broadcaster is the EVENT_BROADCASTER singleton. One instance is created
// at daemon start and passed as a dependency into op handlers and the
// automation ticker.
type Broadcaster struct {
	mu     sync.Mutex
	ns     *server.Server
	nc     *nats.Conn
	closed bool
}

// New starts an embedded, loopback-only NATS server (no cluster, no
// JetStream) and connects a client to it.
func New() (*Broadcaster, error) {
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           -1, // random free port, loopback only
		NoLog:          true,
		NoSigs:         true,
		DisableShortcut: true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("eventbus: start embedded nats: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("eventbus: embedded nats did not become ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}

	return &Broadcaster{ns: ns, nc: nc}, nil
}

func subject(topic, groupID string) string {
	if groupID == "" {
		return topic
	}
	return topic + "." + groupID
}

// Publish fans data out to every subscriber of topic (optionally
// group-scoped). Delivery is fire-and-forget and non-durable: a subscriber
// that isn't currently connected misses the message.
func (b *Broadcaster) Publish(topic, groupID string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("eventbus: closed")
	}
	return b.nc.Publish(subject(topic, groupID), data)
}

// Subscription wraps a nats.Subscription with the deduced topic/group.
type Subscription struct {
	sub *nats.Subscription
}

// Unsubscribe cancels delivery.
func (s *Subscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Subscribe registers fn to be called for every Publish on topic
// (optionally group-scoped). It returns a handle that can be used to
// unsubscribe.
func (b *Broadcaster) Subscribe(ctx context.Context, topic, groupID string, fn func(Event)) (*Subscription, error) {
	b.mu.Lock()
	nc := b.nc
	b.mu.Unlock()

	sub, err := nc.Subscribe(subject(topic, groupID), func(msg *nats.Msg) {
		fn(Event{Topic: topic, GroupID: groupID, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return &Subscription{sub: sub}, nil
}

// Close tears down the client connection and the embedded server.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.nc.Close()
	b.ns.Shutdown()
}
