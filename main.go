// filegate - a small HTTP/1.1 file server with session-based login.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"filegate/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "filegate: %v\n", err)
		os.Exit(1)
	}
}
