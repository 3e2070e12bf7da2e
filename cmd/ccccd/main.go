// Package main is the entry point for ccccd, the single-writer
// collaboration daemon.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cccckit/cccc/internal/daemon"
	"github.com/cccckit/cccc/internal/headless"
	"github.com/cccckit/cccc/internal/homedir"
	"github.com/cccckit/cccc/internal/ipcwire"
	"github.com/cccckit/cccc/internal/obs"
	"github.com/cccckit/cccc/internal/settings"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ccccd",
		Short: "cccc collaboration daemon (single writer)",
	}
	rootCmd.AddCommand(newRunCmd(), newStartCmd(), newStopCmd(), newStatusCmd(), newVersionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveHome() (string, error) {
	return homedir.Home()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ccccd %s\n", version)
		},
	}
}

// newRunCmd runs the daemon in the foreground, blocking until shutdown.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground()
		},
	}
}

func runForeground() error {
	home, err := resolveHome()
	if err != nil {
		return fmt.Errorf("ccccd: resolve home: %w", err)
	}

	layout := homedir.NewLayout(home)
	if err := layout.EnsureDirs(); err != nil {
		return fmt.Errorf("ccccd: ensure dirs: %w", err)
	}
	sdoc, err := settings.Load(layout.SettingsPath)
	if err != nil {
		return fmt.Errorf("ccccd: load settings: %w", err)
	}

	log, syncLog, err := obs.NewLogger(sdoc.Observability)
	if err != nil {
		return fmt.Errorf("ccccd: init logger: %w", err)
	}
	defer syncLog()

	metrics := obs.NewMetrics()
	obs.SetGlobal(metrics)
	if ln, err := metrics.Serve("127.0.0.1:0"); err == nil {
		log.Info("metrics listening", "addr", ln.Addr().String())
		defer ln.Close()
	} else {
		log.Error(err, "failed to bind metrics listener")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tel := obs.InitTelemetry(ctx, log)
	defer tel.Shutdown(context.Background())

	newProvider := func(runtime string) (headless.Provider, error) {
		switch runtime {
		case "anthropic":
			key := os.Getenv("ANTHROPIC_API_KEY")
			if key == "" {
				return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
			}
			return headless.NewAnthropicProvider(key, os.Getenv("CCCC_ANTHROPIC_MODEL")), nil
		case "openai":
			key := os.Getenv("OPENAI_API_KEY")
			if key == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY not set")
			}
			return headless.NewOpenAIProvider(key, os.Getenv("CCCC_OPENAI_MODEL")), nil
		default:
			return nil, fmt.Errorf("unknown headless runtime %q", runtime)
		}
	}

	d, err := daemon.New(home, newProvider, log)
	if err != nil {
		return fmt.Errorf("ccccd: construct daemon: %w", err)
	}
	log.Info("ccccd starting", "home", home, "version", version)
	return d.Run(ctx)
}

// newStartCmd spawns the daemon as a detached background process, per
// daemon_main.py's start/stop/status trio.
func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome()
			if err != nil {
				return err
			}
			layout := homedir.NewLayout(home)
			if resp, ok := pingDaemon(layout); ok && resp.OK {
				fmt.Println("ccccd: already running")
				return nil
			}
			if err := layout.EnsureDirs(); err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			logPath := filepath.Join(layout.DaemonDir, "ccccd.log")
			logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return err
			}
			defer logFile.Close()

			c := exec.Command(exe, "run")
			c.Stdout = logFile
			c.Stderr = logFile
			c.Stdin = nil
			c.Env = append(os.Environ(), "CCCC_HOME="+home)
			c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := c.Start(); err != nil {
				return fmt.Errorf("ccccd: spawn: %w", err)
			}
			fmt.Printf("ccccd: started pid=%d\n", c.Process.Pid)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome()
			if err != nil {
				return err
			}
			layout := homedir.NewLayout(home)
			if resp, ok := callDaemon(layout, ipcwire.Request{V: 1, Op: "shutdown", By: "user"}); ok && resp.OK {
				fmt.Println("ccccd: shutdown requested")
				return nil
			}
			pid := readPID(layout)
			if pid > 0 {
				if err := syscall.Kill(pid, syscall.SIGTERM); err == nil {
					fmt.Println("ccccd: SIGTERM sent")
					return nil
				}
			}
			fmt.Println("ccccd: not running")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome()
			if err != nil {
				return err
			}
			layout := homedir.NewLayout(home)
			resp, ok := pingDaemon(layout)
			if ok && resp.OK {
				fmt.Printf("ccccd: running pid=%v version=%v\n", resp.Result["pid"], resp.Result["version"])
				return nil
			}
			fmt.Println("ccccd: not running")
			return fmt.Errorf("not running")
		},
	}
}

func pingDaemon(layout homedir.Layout) (ipcwire.Response, bool) {
	return callDaemon(layout, ipcwire.Request{V: 1, Op: "ping", By: "user"})
}

func readPID(layout homedir.Layout) int {
	data, err := os.ReadFile(layout.PIDPath)
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0
	}
	return pid
}

// callDaemon is the CLI-side counterpart of daemon.pingSocket: a one-shot
// dial + request + single-line response read over the Unix socket.
func callDaemon(layout homedir.Layout, req ipcwire.Request) (ipcwire.Response, bool) {
	conn, err := net.DialTimeout("unix", layout.SocketPath, 500*time.Millisecond)
	if err != nil {
		return ipcwire.Response{}, false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	line, err := json.Marshal(req)
	if err != nil {
		return ipcwire.Response{}, false
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return ipcwire.Response{}, false
	}
	br := bufio.NewReader(conn)
	respLine, err := br.ReadBytes('\n')
	if err != nil || len(respLine) == 0 {
		return ipcwire.Response{}, false
	}
	var resp ipcwire.Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return ipcwire.Response{}, false
	}
	return resp, true
}
