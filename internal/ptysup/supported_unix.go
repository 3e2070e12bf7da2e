//go:build !windows

package ptysup

func supportedImpl() bool { return true }
