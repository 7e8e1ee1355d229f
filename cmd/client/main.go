// Command client subscribes to one SSE stream and prints each Event it
// receives to stdout, reconnecting per internal/sseclient's
// ReconnectPolicy until a terminal outcome or a SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/guyzmo/ssemux/internal/config"
	"github.com/guyzmo/ssemux/internal/logging"
	"github.com/guyzmo/ssemux/internal/sseclient"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := config.ParseClientFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logger := logging.MustBuildLogger(flags.LogLevel, "dev")
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	c := sseclient.New(sseclient.Config{
		URL:       flags.URL,
		Username:  flags.Username,
		Password:  flags.Password,
		KeepAlive: flags.KeepAlive,
	}, logger)

	err = c.Run(ctx, func(ev sseclient.Event) {
		fmt.Printf("event: %s\nid: %s\ndata: %s\n\n", ev.Name, ev.ID, ev.Data)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("client stream ended with error", zap.Error(err))
		return 1
	}
	return 0
}
