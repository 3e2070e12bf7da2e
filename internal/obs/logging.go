// Package obs wires ccccd's ambient observability: a zap-backed logr.Logger,
// optional OTLP tracing/metrics (grpc or http, mirroring the teacher's
// cmd/agent-runner/observability.go env-toggle shape), and a Prometheus
// registry for the domain counters daemon handlers and the PTY/ledger
// subsystems feed.
package obs

import (
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cccckit/cccc/internal/settings"
)

// NewLogger builds the process logr.Logger from the global settings
// document's observability block: developer_mode selects zap's human
// console encoder over JSON, log_level maps 1:1 onto zap's level names.
func NewLogger(o settings.Observability) (logr.Logger, func(), error) {
	var cfg zap.Config
	if o.DeveloperMode {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(strings.ToLower(o.LogLevel)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	log := zapr.NewLogger(zl)
	return log, func() { _ = zl.Sync() }, nil
}

// ComponentLevel resolves a per-component log level override from the
// observability document's components map, falling back to the global
// level — matching kernel/settings.py's DEFAULT_OBSERVABILITY.components
// shape, where individual subsystems (e.g. "pty", "bridge") can be turned up
// independently of the rest of the daemon.
func ComponentLevel(o settings.Observability, component string) string {
	if lvl, ok := o.Components[component]; ok && lvl != "" {
		return lvl
	}
	if o.LogLevel != "" {
		return o.LogLevel
	}
	return "info"
}
