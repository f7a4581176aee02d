// Command pgslice partitions an existing Postgres table without downtime:
// prep an intermediate table, add partitions, fill it in batches, swap it
// into place and analyze the result.
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

	if err := newRootCmd(newApp(os.Stdout)).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pgslice: %v\n", err)
		stop()
		os.Exit(1)
	}
}
