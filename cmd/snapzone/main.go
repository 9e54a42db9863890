// Command snapzone is the multi-room audio control hub daemon. It mirrors
// confirmed state from a Snapcast server, accepts commands over HTTP and
// NATS, and republishes state changes to the configured output channels.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapzone/snapzone/internal/api"
	"github.com/snapzone/snapzone/internal/broker"
	"github.com/snapzone/snapzone/internal/command"
	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/controlbus"
	"github.com/snapzone/snapzone/internal/events"
	"github.com/snapzone/snapzone/internal/integration"
	"github.com/snapzone/snapzone/internal/metric"
	"github.com/snapzone/snapzone/internal/publish"
	"github.com/snapzone/snapzone/internal/push"
	"github.com/snapzone/snapzone/internal/snapcast"
	"github.com/snapzone/snapzone/internal/state"
	"github.com/snapzone/snapzone/internal/topology"
)

const discoveryTimeout = 10 * time.Second

func main() {
	var (
		cfgPath = flag.String("config", "/etc/snapzone/config.yaml", "configuration file")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("configuration invalid", "path", *cfgPath, "err", err)
		os.Exit(1)
	}

	if err := command.ValidateRegistry(); err != nil {
		slog.Error("operation registry incomplete", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := metric.New()
	bus := events.NewBus()
	store := state.New(cfg, bus)

	// Audio-topology server connection.
	address := cfg.Snapcast.Address
	if address == "" {
		if !cfg.Snapcast.Discover {
			slog.Error("no snapcast address configured and discovery disabled")
			os.Exit(1)
		}
		address, err = snapcast.Discover(ctx, discoveryTimeout)
		if err != nil {
			slog.Error("snapcast discovery failed", "err", err)
			os.Exit(1)
		}
	}
	topo := snapcast.New(snapcast.Config{
		Address:       address,
		Timeout:       cfg.Snapcast.Timeout,
		ReconnectWait: cfg.Snapcast.ReconnectWait,
	})
	go func() {
		if err := topo.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("snapcast connection terminated", "err", err)
		}
	}()

	mapper := topology.NewMapper(topo, cfg, metrics)
	if err := mapper.Bootstrap(ctx); err != nil {
		// The server may simply be slower to come up than we are. The
		// reconcile loop retries placement once it is reachable.
		slog.Warn("initial topology bootstrap incomplete", "err", err)
	}
	go mapper.Run(ctx)

	pump := topology.NewPump(store, mapper, cfg)
	go pump.Run(ctx, topo.Notifications())

	svc := command.New(cfg, store, topo, mapper)

	// Output channels.
	var publishers []publish.Publisher
	var brokerClient *broker.Client
	if cfg.Broker.Enabled {
		brokerClient, err = broker.Connect(ctx, cfg.Broker)
		if err != nil {
			slog.Error("broker connection failed", "err", err)
			os.Exit(1)
		}
		defer brokerClient.Close()
		publishers = append(publishers, publish.NewBroker(brokerClient, cfg.Broker.TopicRoot))

		consumer := broker.NewConsumer(brokerClient, svc, cfg.Broker.CommandPrefix, metrics)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("command consumer failed", "err", err)
			os.Exit(1)
		}
		defer consumer.Stop()
	}
	if cfg.ControlBus.Enabled {
		// The control-bus wire protocol is site-specific; the in-memory
		// client logs writes so integrations can be verified end to end.
		publishers = append(publishers, publish.NewControlBus(controlbus.NewMock(), cfg.ControlBus.Addresses))
	}

	hub := push.NewHub(func() any { return store.Snapshot() }, metrics)
	defer hub.Close()
	publishers = append(publishers, publish.NewPush(hub))

	coord := integration.New(bus, publishers, metrics)
	go coord.Run(ctx)

	// Config watcher: changes require a restart, but surfacing them beats
	// silently running stale config.
	go func() {
		err := config.Watch(ctx, *cfgPath, func() {
			slog.Warn("configuration file changed, restart to apply", "path", *cfgPath)
		})
		if err != nil && ctx.Err() == nil {
			slog.Warn("config watcher stopped", "err", err)
		}
	}()

	router := api.NewRouter(store, svc, hub, metrics)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("snapzone listening", "addr", cfg.HTTP.Addr, "snapcast", address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
}
