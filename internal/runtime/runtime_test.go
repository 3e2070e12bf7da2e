package runtime

import (
	"fmt"
	"testing"
)

func TestDetectKnownAndUnknown(t *testing.T) {
	if _, ok := Detect("claude"); !ok {
		t.Fatalf("claude should be a known runtime")
	}
	if _, ok := Detect("custom"); ok {
		t.Fatalf("custom should not be in the known-runtime catalogue")
	}
}

func TestCommandForUnknownReturnsNil(t *testing.T) {
	if cmd := CommandFor("not-a-runtime"); cmd != nil {
		t.Fatalf("expected nil command for an unknown runtime, got %v", cmd)
	}
}

func TestCommandForReturnsACopy(t *testing.T) {
	cmd := CommandFor("claude")
	cmd[0] = "mutated"
	if KnownRuntimes["claude"].Command[0] == "mutated" {
		t.Fatalf("CommandFor should not let callers mutate the catalogue")
	}
}

func TestCommandWithAutonomousFlagsAppendsFlags(t *testing.T) {
	cmd := CommandWithAutonomousFlags("claude")
	if len(cmd) != 2 || cmd[0] != "claude" || cmd[1] != "--dangerously-skip-permissions" {
		t.Fatalf("unexpected autonomous command: %v", cmd)
	}
}

func TestCommandWithAutonomousFlagsNoFlagsDefined(t *testing.T) {
	cmd := CommandWithAutonomousFlags("opencode")
	if len(cmd) != 1 || cmd[0] != "opencode" {
		t.Fatalf("expected just the base command when no autonomous flag is defined, got %v", cmd)
	}
}

func TestCommandWithAutonomousFlagsUnknownRuntime(t *testing.T) {
	if cmd := CommandWithAutonomousFlags("not-a-runtime"); cmd != nil {
		t.Fatalf("expected nil for an unknown runtime, got %v", cmd)
	}
}

func TestAvailableFiltersByLookPath(t *testing.T) {
	lookPath := func(name string) (string, error) {
		if name == "claude" {
			return "/usr/local/bin/claude", nil
		}
		return "", fmt.Errorf("not found: %s", name)
	}
	avail := Available(lookPath)
	if len(avail) != 1 || avail[0] != "claude" {
		t.Fatalf("expected only claude to be available, got %v", avail)
	}
}
