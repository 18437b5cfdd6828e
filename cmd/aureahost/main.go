// Command aureahost runs the runtime host: the persistent store, the
// scheduler loop, and a minimal /healthz endpoint. It owns no other
// HTTP surface — the front-end HTTP/SSE API is an external
// collaborator, out of scope for this binary.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/danvoulez/aurea/internal/config"
	"github.com/danvoulez/aurea/internal/events"
	"github.com/danvoulez/aurea/internal/handler"
	"github.com/danvoulez/aurea/internal/handlers/echo"
	"github.com/danvoulez/aurea/internal/logger"
	"github.com/danvoulez/aurea/internal/policy"
	"github.com/danvoulez/aurea/internal/receipts"
	"github.com/danvoulez/aurea/internal/runtime"
	"github.com/danvoulez/aurea/internal/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("aureahost", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", envOr("AUREA_CONFIG", "configs/aureahost.yaml"), "path to aureahost config YAML")
	listen := fs.String("listen", "", "override host.listen")
	db := fs.String("db", "", "override store.path")
	keysDir := fs.String("keys-dir", "", "directory holding the signing seed file named by signing.seedPath")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "aureahost: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Host.Listen = *listen
	}
	if *db != "" {
		cfg.Store.Path = *db
	}
	if *keysDir != "" {
		cfg.Signing.SeedPath = filepath.Join(*keysDir, filepath.Base(cfg.Signing.SeedPath))
	}
	log := logger.New("aureahost", cfg.LogLevel)

	seed, err := os.ReadFile(cfg.Signing.SeedPath)
	if err != nil {
		fmt.Fprintf(stderr, "aureahost: read signing seed: %v\n", err)
		return 1
	}
	if len(seed) != ed25519.SeedSize {
		fmt.Fprintf(stderr, "aureahost: signing seed must be %d bytes\n", ed25519.SeedSize)
		return 1
	}
	signer, err := receipts.NewSigner(cfg.Signing.KID, seed)
	if err != nil {
		fmt.Fprintf(stderr, "aureahost: %v\n", err)
		return 1
	}

	st, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		fmt.Fprintf(stderr, "aureahost: %v\n", err)
		return 1
	}
	defer st.Close()

	registry := handler.NewRegistry()
	registry.Register(echo.New())

	bus := events.NewBus()
	sched := runtime.New(st, registry, signer, bus, policy.AllowAllPolicy{}, log,
		cfg.Store.TickInterval.Duration, cfg.Store.LeaseTTL.Duration)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ready := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ready:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	httpServer := &http.Server{Addr: cfg.Host.Listen, Handler: mux}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		close(ready)
		return sched.Run(gctx)
	})
	group.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			return httpServer.Close()
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	})

	if err := group.Wait(); err != nil {
		fmt.Fprintf(stderr, "aureahost: %v\n", err)
		return 1
	}
	return 0
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}
