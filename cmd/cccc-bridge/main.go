// Package main is the entry point for cccc-bridge: one process per
// (group, platform) pair, relaying a group's ledger to an IM platform and
// back. Flag/signal/health-endpoint shape grounded on the teacher's
// channels/*/main.go pods, adapted from NATS-subscriber pods into clients
// of ccccd's Unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/cccckit/cccc/internal/bridge"
	"github.com/cccckit/cccc/internal/bridge/adapters/dingtalk"
	"github.com/cccckit/cccc/internal/bridge/adapters/discord"
	"github.com/cccckit/cccc/internal/bridge/adapters/slack"
	"github.com/cccckit/cccc/internal/bridge/adapters/telegram"
	"github.com/cccckit/cccc/internal/bridge/adapters/whatsapp"
	"github.com/cccckit/cccc/internal/homedir"
	"github.com/cccckit/cccc/internal/obs"
	"github.com/cccckit/cccc/internal/settings"
)

func main() {
	var (
		platform   string
		groupID    string
		listenAddr string
		ratePerSec float64
		dedupTTL   time.Duration
	)
	flag.StringVar(&platform, "platform", os.Getenv("CCCC_BRIDGE_PLATFORM"), "discord|slack|telegram|whatsapp|dingtalk")
	flag.StringVar(&groupID, "group", os.Getenv("CCCC_BRIDGE_GROUP"), "group id to bridge")
	flag.StringVar(&listenAddr, "addr", ":8080", "health endpoint listen address")
	flag.Float64Var(&ratePerSec, "rate", 1.0, "max outbound sends per second per chat")
	flag.DurationVar(&dedupTTL, "dedup-ttl", 0, "inbound message id dedup TTL (0 disables)")
	flag.Parse()

	if platform == "" || groupID == "" {
		fmt.Fprintln(os.Stderr, "cccc-bridge: --platform and --group (or CCCC_BRIDGE_PLATFORM/CCCC_BRIDGE_GROUP) are required")
		os.Exit(1)
	}

	home, err := homedir.Home()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cccc-bridge:", err)
		os.Exit(1)
	}
	layout := homedir.NewLayout(home)
	sdoc, err := settings.Load(layout.SettingsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cccc-bridge: load settings:", err)
		os.Exit(1)
	}
	log, syncLog, err := obs.NewLogger(sdoc.Observability)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cccc-bridge: init logger:", err)
		os.Exit(1)
	}
	defer syncLog()
	log = log.WithName("cccc-bridge").WithValues("platform", platform, "group_id", groupID)

	adp, err := buildAdapter(platform, log)
	if err != nil {
		log.Error(err, "unsupported platform")
		os.Exit(1)
	}

	stateDir := layout.StateDir(groupID) + "/im_bridge/" + platform
	cfg := bridge.Config{
		GroupID: groupID, LedgerPath: layout.LedgerPath(groupID), StateDir: stateDir,
		SocketPath: layout.SocketPath, RatePerSec: ratePerSec, DedupTTL: dedupTTL,
	}
	br, err := bridge.New(cfg, adp, log)
	if err != nil {
		log.Error(err, "construct bridge")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	healthy := true
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := &http.Server{Addr: listenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "health server failed")
		}
	}()

	log.Info("cccc-bridge starting")
	if err := br.Run(ctx); err != nil {
		healthy = false
		log.Error(err, "bridge run failed")
		os.Exit(1)
	}
}

func buildAdapter(platform string, log logr.Logger) (bridge.Adapter, error) {
	switch platform {
	case "discord":
		token := os.Getenv("DISCORD_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
		}
		return discord.New(token), nil
	case "slack":
		bot := os.Getenv("SLACK_BOT_TOKEN")
		app := os.Getenv("SLACK_APP_TOKEN")
		if bot == "" || app == "" {
			return nil, fmt.Errorf("SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required")
		}
		return slack.New(bot, app), nil
	case "telegram":
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
		}
		return telegram.New(token), nil
	case "whatsapp":
		dataDir := os.Getenv("WHATSAPP_DATA_DIR")
		if dataDir == "" {
			dataDir = "/data"
		}
		return whatsapp.New(dataDir), nil
	case "dingtalk":
		appKey := os.Getenv("DINGTALK_APP_KEY")
		appSecret := os.Getenv("DINGTALK_APP_SECRET")
		robotCode := os.Getenv("DINGTALK_ROBOT_CODE")
		listenAddr := os.Getenv("DINGTALK_WEBHOOK_ADDR")
		if appKey == "" || appSecret == "" {
			return nil, fmt.Errorf("DINGTALK_APP_KEY and DINGTALK_APP_SECRET are required")
		}
		if listenAddr == "" {
			listenAddr = "127.0.0.1:8091"
		}
		return dingtalk.New(appKey, appSecret, robotCode, listenAddr), nil
	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}
