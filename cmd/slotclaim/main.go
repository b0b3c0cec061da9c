package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/slotclaim/slotclaim/cmd/slotclaim/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.ExecuteContext(ctx)
	stop()
	os.Exit(code)
}
