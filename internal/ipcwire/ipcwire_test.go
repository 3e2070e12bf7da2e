package ipcwire

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestReadRequestParsesLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"v":1,"op":"ping","args":{}}` + "\n"))
	req, err := ReadRequest(r)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Op != "ping" {
		t.Fatalf("op = %q, want ping", req.Op)
	}
}

func TestWriteResponseIsSingleLine(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResponse(&buf, OKResponse(map[string]any{"pid": 1})); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	s := buf.String()
	if strings.Count(s, "\n") != 1 {
		t.Fatalf("expected exactly one newline, got %q", s)
	}
}

func TestErrResponseShape(t *testing.T) {
	resp := ErrResponse("permission_denied", "peer may not do that", nil)
	if resp.OK {
		t.Fatalf("expected ok=false")
	}
	if resp.Error.Code != "permission_denied" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}
}
