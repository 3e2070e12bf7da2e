package bridge

import "testing"

func TestRateLimiterAllowsFirstSendImmediately(t *testing.T) {
	rl := NewRateLimiter(2)
	if d := rl.Acquire("chat-1"); d != 0 {
		t.Fatalf("first send should not wait, got %v", d)
	}
}

func TestRateLimiterQueuesSecondSend(t *testing.T) {
	rl := NewRateLimiter(2)
	rl.Acquire("chat-1")
	if d := rl.Acquire("chat-1"); d <= 0 {
		t.Fatalf("second send within the interval should wait, got %v", d)
	}
}

func TestRateLimiterIsPerChat(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Acquire("chat-1")
	if d := rl.Acquire("chat-2"); d != 0 {
		t.Fatalf("a different chat should not be throttled by chat-1's send, got %v", d)
	}
}

func TestNewRateLimiterRejectsNonPositiveRate(t *testing.T) {
	rl := NewRateLimiter(0)
	if rl.interval <= 0 {
		t.Fatalf("non-positive perSecond should fall back to a positive interval")
	}
}
