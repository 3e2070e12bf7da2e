// Package main provides the cccc CLI client: a thin wrapper over ccccd's
// Unix-socket op protocol, grounded on the original implementation's cli.py.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cccckit/cccc/internal/homedir"
	"github.com/cccckit/cccc/internal/ipcwire"
	"github.com/cccckit/cccc/internal/ledger"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cccc",
		Short: "cccc working group client",
	}
	rootCmd.AddCommand(
		newAttachCmd(),
		newGroupCmd(),
		newGroupsCmd(),
		newSendCmd(),
		newTailCmd(),
		newInboxCmd(),
		newDaemonCmd(),
		newVersionCmd(),
		newTUICmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cccc %s\n", version)
		},
	}
}

// call dials ccccd and issues one request, starting the daemon first if it
// is not already reachable, mirroring cli.py's _ensure_daemon_running.
func call(op, by string, reqArgs map[string]any) (ipcwire.Response, error) {
	layout, err := currentLayout()
	if err != nil {
		return ipcwire.Response{}, err
	}
	if !ping(layout) {
		ensureDaemonRunning(layout)
	}
	return dial(layout, ipcwire.Request{V: 1, Op: op, Args: reqArgs, By: by})
}

func currentLayout() (homedir.Layout, error) {
	home, err := homedir.Home()
	if err != nil {
		return homedir.Layout{}, err
	}
	return homedir.NewLayout(home), nil
}

func ping(layout homedir.Layout) bool {
	resp, err := dial(layout, ipcwire.Request{V: 1, Op: "ping"})
	return err == nil && resp.OK
}

func ensureDaemonRunning(layout homedir.Layout) {
	exe, err := exec.LookPath("ccccd")
	if err != nil {
		return
	}
	c := exec.Command(exe, "start")
	c.Env = append(os.Environ(), "CCCC_HOME="+layout.Root)
	_ = c.Run()
	for i := 0; i < 30; i++ {
		if ping(layout) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func dial(layout homedir.Layout, req ipcwire.Request) (ipcwire.Response, error) {
	conn, err := net.DialTimeout("unix", layout.SocketPath, 500*time.Millisecond)
	if err != nil {
		return ipcwire.Response{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	line, err := json.Marshal(req)
	if err != nil {
		return ipcwire.Response{}, err
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return ipcwire.Response{}, err
	}
	br := bufio.NewReader(conn)
	respLine, err := br.ReadBytes('\n')
	if err != nil || len(respLine) == 0 {
		return ipcwire.Response{}, fmt.Errorf("cccc: no response from daemon")
	}
	var resp ipcwire.Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return ipcwire.Response{}, err
	}
	return resp, nil
}

func respError(resp ipcwire.Response) error {
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return fmt.Errorf("unknown error")
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func printResp(resp ipcwire.Response) error {
	if !resp.OK {
		if resp.Error != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", resp.Error.Code, resp.Error.Message)
			return fmt.Errorf(resp.Error.Code)
		}
		return fmt.Errorf("unknown error")
	}
	printJSON(resp.Result)
	return nil
}

func newAttachCmd() *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "attach [path]",
		Short: "Attach a path to a working group (auto-create if needed)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			resp, err := call("attach", "cli", map[string]any{"path": path, "group_id": groupID})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "attach scope to an existing group_id")
	return cmd
}

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Working group operations",
	}
	cmd.AddCommand(newGroupCreateCmd(), newGroupShowCmd(), newGroupUseCmd(), newGroupStartCmd(), newGroupStopCmd())
	return cmd
}

func newGroupCreateCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty working group",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("group_create", "cli", map[string]any{"title": title})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "working-group", "group title")
	return cmd
}

func newGroupShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <group_id>",
		Short: "Show group metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("group_show", "cli", map[string]any{"group_id": args[0]})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
}

func newGroupUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <group_id> [path]",
		Short: "Set group's active scope",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 2 {
				path = args[1]
			}
			resp, err := call("group_use", "cli", map[string]any{"group_id": args[0], "path": path})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
}

func newGroupStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <group_id>",
		Short: "Start a working group's automation and autostarted actors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("group_start", "user", map[string]any{"group_id": args[0]})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
}

func newGroupStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <group_id>",
		Short: "Stop a working group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("group_stop", "user", map[string]any{"group_id": args[0]})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
}

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List known working groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("groups", "cli", nil)
			if err != nil {
				return err
			}
			if !resp.OK {
				return printResp(resp)
			}
			items, _ := resp.Result["groups"].([]any)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP_ID\tTITLE\tTOPIC\tRUNNING")
			for _, raw := range items {
				m, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", m["group_id"], m["title"], m["topic"], m["running"])
			}
			return w.Flush()
		},
	}
}

func newSendCmd() *cobra.Command {
	var by, path string
	cmd := &cobra.Command{
		Use:   "send <group_id> <text>",
		Short: "Send a chat message into a working group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("send", by, map[string]any{"group_id": args[0], "text": args[1], "path": path})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
	cmd.Flags().StringVar(&by, "by", "user", "sender label")
	cmd.Flags().StringVar(&path, "path", "", "send under this scope")
	return cmd
}

func newTailCmd() *cobra.Command {
	var n int
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail <group_id>",
		Short: "Tail a group's ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := currentLayout()
			if err != nil {
				return err
			}
			resp, err := call("group_show", "cli", map[string]any{"group_id": args[0]})
			if err != nil {
				return err
			}
			if !resp.OK {
				return printResp(resp)
			}
			ledgerPath := layout.LedgerPath(args[0])
			events, err := ledger.ReadLastLines(ledgerPath, n)
			if err != nil {
				return err
			}
			for _, ev := range events {
				printJSON(ev)
			}
			if follow {
				return followLedger(ledgerPath, len(events))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 50, "show last N lines")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow (like tail -f)")
	return cmd
}

func followLedger(path string, seen int) error {
	for {
		events, err := ledger.ReadAll(path)
		if err != nil {
			return err
		}
		if len(events) > seen {
			for _, ev := range events[seen:] {
				printJSON(ev)
			}
			seen = len(events)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func newInboxCmd() *cobra.Command {
	var limit int
	var markRead bool
	cmd := &cobra.Command{
		Use:   "inbox <group_id> <actor_id>",
		Short: "List an actor's unread inbox",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("inbox_list", "cli", map[string]any{
				"group_id": args[0], "actor_id": args[1], "limit": limit, "mark_read": markRead,
			})
			if err != nil {
				return err
			}
			return printResp(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max items to return")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "advance the read cursor past the returned items")
	return cmd
}

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon <start|stop|status>",
		Short: "Manage the ccccd daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := currentLayout()
			if err != nil {
				return err
			}
			switch args[0] {
			case "status":
				resp, err := dial(layout, ipcwire.Request{V: 1, Op: "ping"})
				if err == nil && resp.OK {
					fmt.Printf("ccccd: running pid=%v version=%v\n", resp.Result["pid"], resp.Result["version"])
					return nil
				}
				fmt.Println("ccccd: not running")
				return fmt.Errorf("not running")
			case "start":
				ensureDaemonRunning(layout)
				if ping(layout) {
					fmt.Println("ccccd: running")
					return nil
				}
				fmt.Println("ccccd: failed to start")
				return fmt.Errorf("failed to start")
			case "stop":
				resp, err := dial(layout, ipcwire.Request{V: 1, Op: "shutdown", By: "user"})
				if err == nil && resp.OK {
					fmt.Println("ccccd: shutdown requested")
					return nil
				}
				fmt.Println("ccccd: not running")
				return nil
			default:
				return fmt.Errorf("unknown daemon action %q", args[0])
			}
		},
	}
	return cmd
}

