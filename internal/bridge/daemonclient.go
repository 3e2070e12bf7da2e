package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cccckit/cccc/internal/ipcwire"
)

// DaemonClient is a one-shot-per-call Unix-socket client speaking ccccd's
// wire protocol, the same shape cmd/cccc uses, adapted here so a bridge
// process (which runs independently of any CLI invocation) can drive
// control-command ops against the daemon.
type DaemonClient struct {
	SocketPath string
	Timeout    time.Duration
}

// NewDaemonClient returns a client with a 10s default per-call timeout.
func NewDaemonClient(socketPath string) *DaemonClient {
	return &DaemonClient{SocketPath: socketPath, Timeout: 10 * time.Second}
}

// Call issues one request and returns the parsed response.
func (c *DaemonClient) Call(op, by string, args map[string]any) (ipcwire.Response, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath, 2*time.Second)
	if err != nil {
		return ipcwire.Response{}, fmt.Errorf("bridge: dial daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.Timeout))

	line, err := json.Marshal(ipcwire.Request{V: 1, Op: op, Args: args, By: by})
	if err != nil {
		return ipcwire.Response{}, err
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return ipcwire.Response{}, err
	}
	br := bufio.NewReader(conn)
	respLine, err := br.ReadBytes('\n')
	if err != nil || len(respLine) == 0 {
		return ipcwire.Response{}, fmt.Errorf("bridge: no response from daemon")
	}
	var resp ipcwire.Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return ipcwire.Response{}, err
	}
	if !resp.OK && resp.Error != nil {
		return resp, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp, nil
}
