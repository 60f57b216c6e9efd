// Command echo-unit is a minimal fabric unit that answers every
// request it sees with "Echo: " plus the request payload. It exists
// to make the happy-path request/response scenario runnable end to
// end against a live store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/muf/internal/buildinfo"
	"github.com/nugget/muf/internal/client"
	"github.com/nugget/muf/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	unitFlag := flag.String("unit", "", "unit name (overrides config)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.Default()
	if cfgPath, err := config.FindConfig(*configPath); err == nil {
		loaded, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			logger.Error("failed to load config", "path", cfgPath, "error", loadErr)
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.Unit == "" {
		cfg.Unit = "echo-unit"
	}
	if *unitFlag != "" {
		cfg.Unit = *unitFlag
	}

	c := client.New(client.Config{
		Unit:         cfg.Unit,
		Store:        cfg.Store.Options(),
		Logger:       logger,
		OnStoreReady: func() { logger.Info("store connection ready") },
		OnStoreDown:  func(err error) { logger.Warn("store connection down", "error", err) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}
	defer c.Stop()

	if err := c.Listen(echoHandler(logger)); err != nil {
		logger.Error("failed to register echo handler", "error", err)
		os.Exit(1)
	}

	logger.Info("echo-unit listening for requests", "unit", c.Unit())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
}

// echoHandler returns "Echo: " plus the request payload, verbatim.
func echoHandler(logger *slog.Logger) func(senderUnit, messageID string, payload []byte) ([]byte, error) {
	return func(senderUnit, messageID string, payload []byte) ([]byte, error) {
		logger.Info("request received", "sender", senderUnit, "id", messageID, "payload", string(payload))
		return append([]byte("Echo: "), payload...), nil
	}
}
