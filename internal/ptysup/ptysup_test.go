package ptysup

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestFanOutReplaysBacklogToNewClient(t *testing.T) {
	if !Supported() {
		t.Skip("pty not supported on this platform")
	}
	sup := NewSupervisor(nil)
	sess, err := sup.Start(Key{GroupID: "g1", ActorID: "a1"}, []string{"sh", "-c", "printf 'A\\nB\\nC\\n'; sleep 2"}, nil, 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(sess.key)

	var mu sync.Mutex
	var buf1 bytes.Buffer
	deadline := time.Now().Add(2 * time.Second)
	for sess.BacklogLen() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	id1, backlog1 := sess.Attach(func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		buf1.Write(b)
		return nil
	})
	defer sess.Detach(id1)

	if !bytes.Contains(backlog1, []byte("A\r\nB\r\nC\r\n")) {
		t.Fatalf("expected first attach to replay backlog, got %q", backlog1)
	}

	var buf2 bytes.Buffer
	id2, backlog2 := sess.Attach(func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		buf2.Write(b)
		return nil
	})
	defer sess.Detach(id2)

	if !bytes.Contains(backlog2, []byte("A\r\nB\r\nC\r\n")) {
		t.Fatalf("expected second attach to also replay backlog, got %q", backlog2)
	}
}

func TestBacklogBounded(t *testing.T) {
	if !Supported() {
		t.Skip("pty not supported on this platform")
	}
	sup := NewSupervisor(nil)
	sess, err := sup.Start(Key{GroupID: "g1", ActorID: "a1"}, []string{"sh", "-c", "yes X | head -c 4000000; sleep 1"}, nil, 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(sess.key)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sess.BacklogLen() > defaultBacklogBytes {
			t.Fatalf("backlog exceeded cap: %d > %d", sess.BacklogLen(), defaultBacklogBytes)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
