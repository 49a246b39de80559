package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/netleapio/stokercloud-controller/stokercloud"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const shutdownTimeout = 5 * time.Second

func newApp() *cli.App {
	return &cli.App{
		Name:    "stokercloud",
		Usage:   "bridge a StokerCloud pellet boiler to Home Assistant",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file (default " + DefaultConfigFile + " if present)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level: trace, debug, info, warn, error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "poll the boiler and publish to MQTT, Prometheus and websocket clients",
				Action: runDaemon,
			},
			{
				Name:  "status",
				Usage: "print the flattened controller status once",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print as a JSON object"},
				},
				Action: runStatus,
			},
			{
				Name:      "set",
				Usage:     "write a boiler setting",
				ArgsUsage: "<key> <value>",
				Action:    runSet,
			},
		},
		DefaultCommand: "run",
	}
}

func loadSettings(c *cli.Context) (*Config, hclog.Logger, error) {
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	log, err := newLogger(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newStokerClient(s StokerSettings, log hclog.Logger) (*stokercloud.Client, error) {
	opts := []stokercloud.Option{
		stokercloud.WithTimeout(s.Timeout),
		stokercloud.WithCacheTTL(s.CacheTTL),
		stokercloud.WithLogger(log.Named("stokercloud")),
	}
	if s.Password != "" {
		opts = append(opts, stokercloud.WithPassword(s.Password))
	}
	if s.BaseURL != "" {
		opts = append(opts, stokercloud.WithBaseURL(s.BaseURL))
	}
	return stokercloud.NewClient(s.User, opts...)
}

func runDaemon(c *cli.Context) error {
	cfg, log, err := loadSettings(c)
	if err != nil {
		return err
	}
	if err := cfg.Verify(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newStokerClient(cfg.Stoker, log)
	if err != nil {
		return err
	}
	manager := NewBoilerManager(client, cfg.Stoker.PollInterval, log.Named("poller"))

	if cfg.Mqtt.Enabled {
		listener := NewMQTTListener(&cfg.Mqtt, log.Named("mqtt"))
		listener.Init(manager, cfg.Stoker.User)
		listener.Start(ctx)
	}

	var servers []*http.Server
	if cfg.Metrics.Addr != "" {
		servers = append(servers, newMetricsServer(cfg.Metrics.Addr))
	}
	if cfg.WebSocket.Addr != "" {
		ws := NewWebSocketListener(log.Named("websocket"))
		ws.Init(manager)
		servers = append(servers, ws.Start(ctx, cfg.WebSocket.Addr))
	}

	serveErr := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			log.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	manager.Start(ctx)
	log.Info("started", "version", Version, "account", cfg.Stoker.User, "interval", cfg.Stoker.PollInterval)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", "addr", srv.Addr, "error", err)
		}
	}

	return runErr
}

func runStatus(c *cli.Context) error {
	cfg, log, err := loadSettings(c)
	if err != nil {
		return err
	}
	if err := cfg.Stoker.Verify(); err != nil {
		return err
	}

	client, err := newStokerClient(cfg.Stoker, log)
	if err != nil {
		return err
	}
	flat, err := client.StatusFlat(c.Context)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(flat)
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s = %v\n", k, flat[k])
	}
	return nil
}

func runSet(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: %s set <key> <value>", c.App.Name)
	}
	key := c.Args().Get(0)

	d, ok := lookupEntity(key)
	if !ok || d.Kind != kindNumber {
		return fmt.Errorf("%q is not a settable value", key)
	}
	if d.Internal {
		return fmt.Errorf("%q is held by the running daemon only; set it through Home Assistant", key)
	}

	value, err := strconv.ParseFloat(c.Args().Get(1), 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", c.Args().Get(1), err)
	}

	cfg, log, err := loadSettings(c)
	if err != nil {
		return err
	}
	if err := cfg.Stoker.Verify(); err != nil {
		return err
	}

	client, err := newStokerClient(cfg.Stoker, log)
	if err != nil {
		return err
	}
	manager := NewBoilerManager(client, cfg.Stoker.PollInterval, log.Named("poller"))

	accepted, err := manager.SetValue(c.Context, key, value)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s = %v\n", key, accepted)
	return nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "stokercloud: %s.\n", err)
		os.Exit(1)
	}
}
