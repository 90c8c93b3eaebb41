// Command acj runs adaptive comparative judgement sessions with simulated
// participants. It also replays recorded trial files and merges the session
// exports of a data directory into one table.
//
// Usage:
//
//	acj simulate --config session.yaml --participants 4
//	acj replay --items a.png,b.png,c.png --trials data/p01_20240101_120000.csv
//	acj combine --dir data
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
