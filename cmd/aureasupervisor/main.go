// Command aureasupervisor spawns and monitors the aureahost runtime
// process, restarting it under bounded exponential backoff when its
// health probe fails repeatedly or it exits nonzero.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danvoulez/aurea/internal/config"
	"github.com/danvoulez/aurea/internal/logger"
	"github.com/danvoulez/aurea/internal/supervisor"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. Flags match spec.md §6's
// supervisor CLI exactly.
func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("aureasupervisor", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cmdFlag := fs.String("cmd", "", "child command line, space separated")
	listen := fs.String("listen", ":8090", "address the child's health endpoint listens on")
	db := fs.String("db", "./data/aurea.db", "path to the child's store database")
	keysDir := fs.String("keys-dir", "./keys", "directory holding signing key material")
	logsDir := fs.String("logs-dir", "./logs", "directory for rotated child stdout/stderr logs")
	maxRestarts := fs.Int("max-restarts", 10, "give up after this many restarts")
	healthURL := fs.String("health-url", "", "override the derived health probe URL")
	healthGraceMs := fs.Int("health-grace-ms", 2000, "grace period before the first health probe")
	healthIntervalMs := fs.Int("health-interval-ms", 2000, "interval between health probes")
	healthTimeoutMs := fs.Int("health-timeout-ms", 1000, "per-probe HTTP timeout")
	maxConsecutiveHealthFailures := fs.Int("max-consecutive-health-failures", 3, "kill and restart after this many consecutive failures")
	logLevel := fs.String("log-level", "info", "log level for the supervisor itself")

	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if strings.TrimSpace(*cmdFlag) == "" {
		fmt.Fprintln(stderr, "aureasupervisor: --cmd is required")
		return 2
	}

	cfg := config.SupervisorConfig{
		Cmd:                          strings.Fields(*cmdFlag),
		Listen:                       *listen,
		DB:                           *db,
		KeysDir:                      *keysDir,
		LogsDir:                      *logsDir,
		MaxRestarts:                  *maxRestarts,
		HealthURL:                    *healthURL,
		HealthGraceMs:                *healthGraceMs,
		HealthIntervalMs:             *healthIntervalMs,
		HealthTimeoutMs:              *healthTimeoutMs,
		MaxConsecutiveHealthFailures: *maxConsecutiveHealthFailures,
	}
	config.ApplySupervisorDefaults(&cfg)

	log := logger.New("aureasupervisor", *logLevel)

	sup := supervisor.New(supervisor.Config{
		Cmd:                          cfg.Cmd,
		Listen:                       cfg.Listen,
		DB:                           cfg.DB,
		KeysDir:                      cfg.KeysDir,
		LogsDir:                      cfg.LogsDir,
		MaxRestarts:                  cfg.MaxRestarts,
		HealthURL:                    cfg.HealthURL,
		HealthGrace:                  time.Duration(cfg.HealthGraceMs) * time.Millisecond,
		HealthInterval:               time.Duration(cfg.HealthIntervalMs) * time.Millisecond,
		HealthTimeout:                time.Duration(cfg.HealthTimeoutMs) * time.Millisecond,
		MaxConsecutiveHealthFailures: cfg.MaxConsecutiveHealthFailures,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "aureasupervisor: %v\n", err)
		return 1
	}
	return 0
}
