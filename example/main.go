// Command example polls a grid of fake data files with the pollwatch
// library and prints each outcome.
//
// Usage:
//
//	go run ./example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jpalmerr/pollwatch"
	"github.com/jpalmerr/pollwatch/internal/mockapi"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// fake status API: files stay Pending for 2-8s
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}
	api := mockapi.New(logger, 2*time.Second, 8*time.Second)
	go func() { _ = http.Serve(ln, api.Handler()) }()
	base := "http://" + ln.Addr().String()

	// one submission of 4 files, plus one the caller may not read
	targets, err := pollwatch.NewTargetGrid("submission-7",
		pollwatch.WithURLTemplate(base+"/v1/data_files/{{.file}}/summary/"),
		pollwatch.WithDimensions(map[string][]string{
			"file": {"101", "102", "103", "104"},
		}),
		pollwatch.WithGridLabels("program", "TANF"),
	)
	if err != nil {
		logger.Error("failed to create target grid", "error", err)
		os.Exit(1)
	}
	forbidden, _ := pollwatch.NewTarget("submission-7/403", base+"/v1/data_files/403/summary/")
	targets = append(targets, forbidden)

	c, err := pollwatch.New(
		pollwatch.WithDefaultWaitTime(time.Second),
		pollwatch.WithDefaultMaxTries(6),
		pollwatch.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create coordinator", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, t := range targets {
		id := t.RequestID()
		wg.Add(1)
		c.Watch(t, pollwatch.Handlers{
			OnSuccess: func(resp pollwatch.Response) {
				defer wg.Done()
				status, _ := pollwatch.JSONField(resp.Body, "summary.status")
				fmt.Printf("%-22s %s\n", id, status)
			},
			OnError: func(err error) {
				defer wg.Done()
				fmt.Printf("%-22s error: %v\n", id, err)
			},
			OnTimeout: func(onError func(error)) {
				onError(fmt.Errorf("still processing, check back later"))
			},
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Println("interrupted")
	}
}
