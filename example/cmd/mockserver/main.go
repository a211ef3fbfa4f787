// Standalone fake data file status API for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pollwatch watch http://localhost:9999/v1/data_files/42/summary/
//	go run ./cmd/pollwatch serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/pollwatch/internal/mockapi"
)

func main() {
	fmt.Println("Mock status API starting on :9999")
	fmt.Println("Files report Pending for 5-20s, then settle")
	fmt.Println("File ids starting with 403 are forbidden")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	api := mockapi.New(logger, 5*time.Second, 20*time.Second)

	srv := &http.Server{
		Addr:              ":9999",
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
