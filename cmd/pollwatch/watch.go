package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/pollwatch"
	"github.com/jpalmerr/pollwatch/config"
)

// watchCmd polls status URLs in the foreground until each one finishes.
var watchCmd = &cobra.Command{
	Use:   "watch <url> [<url>...]",
	Short: "Poll status URLs until their jobs finish",
	Long: `Poll one or more status URLs until each job finishes, then exit.

Each URL is its own session, polled under the URL as its request id.
The success check uses the same shorthand as the config file.

Exit codes:
  0 - every session succeeded
  1 - at least one session failed or timed out

Example:
  pollwatch watch https://tdp.example.gov/v1/data_files/42/summary/
  pollwatch watch --success 'json:status=done' --wait 5s --max-tries 12 \
      -H 'Authorization: Bearer xyz' https://api.example.com/jobs/7`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("success", "default", "success check, e.g. status:Pending or json:path=done")
	watchCmd.Flags().Duration("wait", 2*time.Second, "time between attempts")
	watchCmd.Flags().Int("max-tries", 30, "attempts before giving up")
	watchCmd.Flags().Duration("timeout", 10*time.Second, "per-attempt request timeout")
	watchCmd.Flags().Int("max-concurrency", 0, "max requests in flight (0 = unlimited)")
	watchCmd.Flags().StringArrayP("header", "H", nil, "request header as 'Key: Value' (repeatable)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel(cmd, ""))
	if err != nil {
		return err
	}

	successFlag, _ := cmd.Flags().GetString("success")
	wait, _ := cmd.Flags().GetDuration("wait")
	maxTries, _ := cmd.Flags().GetInt("max-tries")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	maxConcurrency, _ := cmd.Flags().GetInt("max-concurrency")
	rawHeaders, _ := cmd.Flags().GetStringArray("header")

	sc, err := config.ParseSuccess(successFlag)
	if err != nil {
		return fmt.Errorf("invalid --success: %w", err)
	}
	test, err := config.BuildPredicate(sc)
	if err != nil {
		return fmt.Errorf("invalid --success: %w", err)
	}
	headers, err := parseHeaders(rawHeaders)
	if err != nil {
		return err
	}

	opts := []pollwatch.TargetOption{pollwatch.WithTimeout(timeout)}
	if len(headers) > 0 {
		opts = append(opts, pollwatch.WithHeaders(headers...))
	}
	if test != nil {
		opts = append(opts, pollwatch.WithPredicate(test))
	}

	// a URL is its own request id, so repeats are polled once
	targets := make([]pollwatch.Target, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, raw := range args {
		if seen[raw] {
			continue
		}
		seen[raw] = true

		t, err := pollwatch.NewTarget(raw, raw, opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", raw, err)
		}
		targets = append(targets, t)
	}

	coord, err := pollwatch.New(
		pollwatch.WithDefaultWaitTime(wait),
		pollwatch.WithDefaultMaxTries(maxTries),
		pollwatch.WithMaxConcurrency(maxConcurrency),
		pollwatch.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &lockedWriter{w: cmd.OutOrStdout()}

	// every session runs to its end; Wait reports the first failure
	var g errgroup.Group
	for _, t := range targets {
		t := t
		g.Go(func() error {
			return watchOne(ctx, coord, t, out)
		})
	}
	return g.Wait()
}

// watchOne polls t and blocks until its session ends or ctx is cancelled.
func watchOne(ctx context.Context, coord *pollwatch.Coordinator, t pollwatch.Target, out io.Writer) error {
	id := t.RequestID()
	result := make(chan error, 1)

	coord.Watch(t, pollwatch.Handlers{
		OnSuccess: func(pollwatch.Response) { result <- nil },
		OnError:   func(err error) { result <- err },
	})

	select {
	case err := <-result:
		info, _ := coord.Session(id)
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", id, err)
			return fmt.Errorf("%s: %w", id, err)
		}
		fmt.Fprintf(out, "OK   %s (try %d, status %d)\n", id, info.TryNumber, info.LastStatusCode)
		return nil

	case <-ctx.Done():
		coord.Stop(id)
		return ctx.Err()
	}
}

// parseHeaders turns "Key: Value" strings into key-value pairs.
func parseHeaders(raw []string) ([]string, error) {
	pairs := make([]string, 0, 2*len(raw))
	for _, h := range raw {
		k, v, ok := strings.Cut(h, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Key: Value'", h)
		}
		pairs = append(pairs, k, strings.TrimSpace(v))
	}
	return pairs, nil
}

// lockedWriter serializes writes from concurrent sessions.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
