// Command monitor observes every write on the fabric and prints it to
// the console, optionally persisting an audit trail to SQLite and
// bridging "keep" state to MQTT. Rather than watching one fixed path,
// it subscribes to muf/*/*/* and annotates each line with a
// human-readable payload size.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nugget/muf/internal/bridge/mqttbridge"
	"github.com/nugget/muf/internal/buildinfo"
	"github.com/nugget/muf/internal/client"
	"github.com/nugget/muf/internal/config"
	"github.com/nugget/muf/internal/protocol"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	unitFlag := flag.String("unit", "", "unit name (overrides config)")
	listenAddr := flag.String("listen", "", "address to serve the live WebSocket feed on (e.g. :8787); empty disables it")
	auditPath := flag.String("audit-db", "", "path to a SQLite file recording every observation; empty disables audit logging")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL (e.g. mqtt://localhost:1883) to forward keep-state to; empty disables the bridge")
	mqttDataDir := flag.String("mqtt-data-dir", ".", "directory for the MQTT bridge's persisted instance ID")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

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
		cfg.Unit = "monitor"
	}
	if *unitFlag != "" {
		cfg.Unit = *unitFlag
	}

	var audit *auditLog
	if *auditPath != "" {
		a, err := openAuditLog(*auditPath)
		if err != nil {
			logger.Error("failed to open audit log", "error", err)
			os.Exit(1)
		}
		audit = a
		defer audit.Close()
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

	if *mqttBroker != "" {
		if err := startMQTTBridge(ctx, c, logger, *mqttBroker, *mqttDataDir); err != nil {
			logger.Error("failed to start mqtt bridge", "error", err)
			os.Exit(1)
		}
	}

	pattern := protocol.BuildPathPattern("*", "*", "*")
	if err := c.WatchPath(pattern, watchHandler(c, logger, audit)); err != nil {
		logger.Error("failed to register monitor watch", "error", err)
		os.Exit(1)
	}

	var httpServer *http.Server
	if *listenAddr != "" {
		feed := newWSFeed(c.Events(), logger)
		mux := http.NewServeMux()
		mux.Handle("/feed", feed)
		httpServer = &http.Server{Addr: *listenAddr, Handler: mux}
		go func() {
			logger.Info("serving live feed", "addr", *listenAddr, "path", "/feed")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("feed server error", "error", err)
			}
		}()
	}

	fmt.Println(buildinfo.ContextString())
	fmt.Printf("MUF Monitor: observing %s\n\n", protocol.BuildKeyspacePattern("*", "*", "*"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
}

// watchHandler prints every observed notification and, when audit is
// non-nil, records it to SQLite. It re-reads the payload through c
// because WatchPath (like the keyspace notification it is derived
// from) only tells us a key changed, not what it now holds.
func watchHandler(c *client.Client, logger *slog.Logger, audit *auditLog) func(path string) {
	return func(path string) {
		unit, status, id, ok := protocol.ParsePath(path)
		if !ok {
			return
		}
		payload, err := c.GetState(context.Background(), unit, id, status)
		if err != nil {
			logger.Warn("monitor: get failed", "path", path, "error", err)
			return
		}
		size := "expired"
		if payload != nil {
			size = humanize.Bytes(uint64(len(payload)))
		}
		fmt.Printf("[%s] %-20s id=%-20s %s\n", status, unit, id, size)

		if audit != nil {
			if recErr := audit.Record(path, unit, status, id, len(payload)); recErr != nil {
				logger.Warn("audit record failed", "error", recErr)
			}
		}
	}
}

func startMQTTBridge(ctx context.Context, c *client.Client, logger *slog.Logger, broker, dataDir string) error {
	instanceID, err := mqttbridge.LoadOrCreateInstanceID(dataDir)
	if err != nil {
		return err
	}
	b := mqttbridge.New(mqttbridge.Config{Broker: broker}, instanceID, logger)
	if err := b.Start(ctx); err != nil {
		return err
	}
	return c.WatchState(ctx, "*", "*", mqttbridge.ForwardHandler(b, ctx), protocol.StatusKeep)
}
