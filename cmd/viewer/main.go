package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"example.com/moodsync/internal/client"
	"example.com/moodsync/internal/hub"
	"example.com/moodsync/internal/logging"
)

func main() {
	var (
		baseURL  = pflag.String("url", "ws://localhost:8080", "moodsync server address")
		channel  = pflag.String("channel", hub.ChannelTelemetry, "channel to follow (telemetry or actuation)")
		retry    = pflag.Duration("retry", client.DefaultRetryDelay, "fixed delay between reconnection attempts")
		logLevel = pflag.String("log-level", "warn", "log level")
	)
	pflag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel, Format: "console", ServiceName: "moodsync-viewer"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(client.WSDialer{BaseURL: *baseURL}, *channel, client.RetryPolicy{Delay: *retry}, client.WithLogger(logger))
	deliveries := make(chan client.Delivery)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, deliveries)
	}()

	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case d := <-deliveries:
			if d.Snapshot {
				fmt.Fprintf(os.Stdout, "-- connected (epoch %d) at %s\n", d.Epoch, time.Now().Format(time.RFC3339))
			}
			if err := encoder.Encode(d.Event); err != nil {
				logger.Error("write event failed", zap.Error(err))
			}
		case err := <-done:
			if err != nil {
				logger.Fatal("viewer stopped", zap.Error(err))
			}
			return
		}
	}
}
