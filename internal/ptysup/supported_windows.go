//go:build windows

package ptysup

// On platforms without POSIX PTY support, the daemon forces any pty runner
// to headless on spawn (recorded in the ledger as runner_effective) and
// Supervisor.Start rejects direct PTY starts.
func supportedImpl() bool { return false }
