// Package supervisor implements the separate-process watchdog that
// spawns the runtime host, polls its health endpoint, and restarts it
// under bounded exponential backoff.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danvoulez/aurea/internal/logger"
)

// Config configures one supervised child process.
type Config struct {
	Cmd                          []string
	Listen                       string
	DB                           string
	KeysDir                      string
	LogsDir                      string
	MaxRestarts                  int
	HealthURL                    string
	HealthGrace                  time.Duration
	HealthInterval               time.Duration
	HealthTimeout                time.Duration
	MaxConsecutiveHealthFailures int
}

// Supervisor spawns and monitors Config.Cmd.
type Supervisor struct {
	cfg Config
	log zerolog.Logger
}

// New constructs a Supervisor.
func New(cfg Config, log zerolog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, log: logger.Component(log, "supervisor")}
}

// Backoff computes the bounded exponential restart delay for attempt
// (0-indexed): min(2^attempt, 30) seconds, per spec.md §4.8.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 { // 2^5 == 32 already exceeds the 30s cap
		return 30 * time.Second
	}
	secs := int64(1) << uint(attempt)
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// Run spawns and supervises the child until it exits cleanly or
// MaxRestarts is exhausted. It returns nil on a clean exit, ctx's error
// on cancellation, and an "exceeded max_restarts" error when it gives
// up; the child's own exit errors are logged, not returned.
func (s *Supervisor) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt - 1)
			s.log.Warn().Int("attempt", attempt).Dur("backoff", delay).Msg("restarting child")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if attempt > s.cfg.MaxRestarts {
			return fmt.Errorf("supervisor: exceeded max_restarts (%d)", s.cfg.MaxRestarts)
		}

		clean, err := s.runOnce(ctx, attempt)
		if clean {
			return nil
		}
		if err != nil {
			s.log.Error().Err(err).Int("attempt", attempt).Msg("child run failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runOnce spawns the child once, monitors it until it exits or is
// killed after repeated health-probe failures, and reports whether the
// child exited cleanly (exit code 0) on its own.
func (s *Supervisor) runOnce(ctx context.Context, attempt int) (clean bool, err error) {
	stdout, stderr, err := s.rotateLogs(attempt)
	if err != nil {
		return false, err
	}
	defer stdout.Close()
	defer stderr.Close()

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(childCtx, s.cfg.Cmd[0], childArgs(s.cfg)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("supervisor: start child: %w", err)
	}
	s.log.Info().Int("pid", cmd.Process.Pid).Int("attempt", attempt).Msg("child started")

	var killed atomic.Bool
	group, gctx := errgroup.WithContext(childCtx)
	group.Go(func() error {
		return s.probeHealth(gctx, cmd, &killed)
	})

	waitErr := cmd.Wait()
	cancel()
	_ = group.Wait()

	if killed.Load() {
		return false, fmt.Errorf("supervisor: killed after repeated health failures")
	}
	if waitErr == nil {
		return true, nil
	}
	return false, fmt.Errorf("supervisor: child exited: %w", waitErr)
}

// childArgs appends the runtime host's own --listen/--db/--keys-dir
// flags after whatever arguments cfg.Cmd already carries, so the
// supervisor can hand its child a distinct listen address, database
// path, and key directory instead of whatever happened to be embedded
// in --cmd. Mirrors the child-invocation pattern of the original
// pmdaemon, which always appended these three flags before spawning.
func childArgs(cfg Config) []string {
	return append(append([]string{}, cfg.Cmd[1:]...),
		"--listen", cfg.Listen, "--db", cfg.DB, "--keys-dir", cfg.KeysDir)
}

// probeHealth polls HealthURL after HealthGrace and kills cmd's
// process after MaxConsecutiveHealthFailures consecutive failures.
func (s *Supervisor) probeHealth(ctx context.Context, cmd *exec.Cmd, killed *atomic.Bool) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(s.cfg.HealthGrace):
	}

	client := &http.Client{Timeout: s.cfg.HealthTimeout}
	failures := 0
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ok := s.probeOnce(ctx, client)
			if ok {
				failures = 0
				continue
			}
			failures++
			s.log.Warn().Int("failures", failures).Msg("health probe failed")
			if failures >= s.cfg.MaxConsecutiveHealthFailures {
				killed.Store(true)
				s.log.Error().Msg("max consecutive health failures reached, killing child")
				if cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
				return nil
			}
		}
	}
}

func (s *Supervisor) probeOnce(ctx context.Context, client *http.Client) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HealthURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// rotateLogs opens fresh stdout/stderr log files for this attempt,
// renaming any prior pair aside with a timestamp suffix first.
func (s *Supervisor) rotateLogs(attempt int) (stdout, stderr *os.File, err error) {
	if err := os.MkdirAll(s.cfg.LogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("supervisor: logs dir: %w", err)
	}
	stdoutPath := filepath.Join(s.cfg.LogsDir, "aureahost.stdout.log")
	stderrPath := filepath.Join(s.cfg.LogsDir, "aureahost.stderr.log")

	ts := time.Now().UTC().Format("20060102T150405.000000000Z")
	rotateOne := func(path string) error {
		if _, statErr := os.Stat(path); statErr == nil {
			return os.Rename(path, path+"."+ts)
		}
		return nil
	}
	if err := rotateOne(stdoutPath); err != nil {
		return nil, nil, fmt.Errorf("supervisor: rotate stdout log: %w", err)
	}
	if err := rotateOne(stderrPath); err != nil {
		return nil, nil, fmt.Errorf("supervisor: rotate stderr log: %w", err)
	}

	stdout, err = os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("supervisor: open stdout log: %w", err)
	}
	stderr, err = os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("supervisor: open stderr log: %w", err)
	}
	return stdout, stderr, nil
}
