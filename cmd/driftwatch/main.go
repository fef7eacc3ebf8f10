// cmd/driftwatch is the operator CLI: one-shot detection passes, threshold
// sweeps, run recording and replay against the SQLite store, and live
// WebSocket serving of scenario animations or a followed feed.
//
// Usage:
//
//	driftwatch run --alpha=0.3 --threshold=8 --mode=table
//	driftwatch live --scenario=driftwatch.yaml
package main

import (
	"context"
	"os/signal"
	"syscall"

	"driftwatch/cmd/driftwatch/cmd"
)

func main() {
	// Graceful shutdown for the serving subcommands.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cmd.Execute(ctx)
}
