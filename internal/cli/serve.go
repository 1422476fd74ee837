package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/NarrativeEngine/internal/api"
	"github.com/AaronLay10/NarrativeEngine/internal/config"
	"github.com/AaronLay10/NarrativeEngine/internal/decision"
	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/media"
	"github.com/AaronLay10/NarrativeEngine/internal/mqtt"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
	"github.com/AaronLay10/NarrativeEngine/internal/sequencer"
	"github.com/AaronLay10/NarrativeEngine/internal/storage/postgres"
	"github.com/AaronLay10/NarrativeEngine/internal/storage/sqlite"
	"github.com/AaronLay10/NarrativeEngine/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Config string
	Port   int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the engine: HTTP API, MQTT devices and durable logs",
		Long: `Load engine.yaml and its narrative graph, then serve the HTTP API until
SIGINT or SIGTERM. MQTT, PostgreSQL, SQLite and OTLP tracing are each
enabled from the config file or environment.

A configured engine.root starts a traversal immediately.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "engine.yaml", "engine config file")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "HTTP port (overrides the config)")

	return cmd
}

// engine is everything serve builds from the config, minus the listener.
type engine struct {
	cfg     *config.EngineConfig
	bus     *events.Bus
	runtime *sequencer.Runtime
	history api.History
	broker  *mqtt.Client
	closers []func()
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// resolveGraph makes a relative graph path relative to the config file.
func resolveGraph(configPath, graph string) string {
	if graph == "" || filepath.IsAbs(graph) {
		return graph
	}
	return filepath.Join(filepath.Dir(configPath), graph)
}

// buildEngine wires storage, devices and the runtime. Unreachable optional
// backends are logged and skipped.
func buildEngine(ctx context.Context, cfg *config.EngineConfig, graphPath string) (*engine, error) {
	if graphPath == "" {
		return nil, NewExitError(ExitCommandError, "engine.graph is not set")
	}
	g, err := narrative.Load(graphPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load graph", err)
	}
	issues := narrative.Validate(g)
	for _, issue := range issues {
		slog.Warn("graph issue", "severity", issue.Severity, "node", issue.NodeID, "msg", issue.Message)
	}
	if narrative.HasErrors(issues) {
		return nil, validationFailed(issues)
	}

	e := &engine{cfg: cfg, bus: events.NewBus()}
	rec := record.New()

	if cfg.Postgres.Enabled {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pg, err := postgres.New(pingCtx, cfg.Postgres, cfg.Engine.Name)
		cancel()
		if err != nil {
			slog.Warn("postgres unavailable, continuing without history", "host", cfg.Postgres.Host, "error", err)
		} else {
			e.bus.SetAppender(pg)
			rec.AddSink(pg)
			e.history = pg
			e.closers = append(e.closers, func() { _ = pg.Close() })
		}
	}
	if cfg.SQLite.Path != "" {
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			e.close()
			return nil, WrapExitError(ExitCommandError, "open sqlite", err)
		}
		rec.AddSink(store)
		e.closers = append(e.closers, func() { _ = store.Close() })
	}

	globals, err := g.NewGlobals()
	if err != nil {
		e.close()
		return nil, WrapExitError(ExitCommandError, "variables", err)
	}

	reg := media.NewRegistry()
	if cfg.MQTT.Enabled {
		client := mqtt.NewClient(cfg.MQTT)
		dir := mqtt.NewDirectory(cfg.MQTT.MediaPrefix)
		mqtt.RegisterMedia(reg, client, dir)
		bridge := mqtt.NewBridge(client, globals, dir, e.bus, cfg.MQTT.VariablesTopic)
		client.OnConnect(func() {
			bridge.ClearSubscriptions()
			if err := bridge.Start(); err != nil {
				slog.Warn("mqtt bridge subscribe failed", "error", err)
			}
		})
		client.Start()
		e.broker = client
		e.closers = append(e.closers, client.Disconnect)
	}

	seed := cfg.Engine.Seed
	if seed == 0 {
		if seed, err = decision.NewSeed(); err != nil {
			e.close()
			return nil, err
		}
	}

	rt, err := sequencer.New(sequencer.Options{
		Graph:  g,
		Vars:   globals,
		Record: rec,
		Events: e.bus,
		Media:  reg,
		Rand:   decision.NewRand(seed),
	})
	if err != nil {
		e.close()
		return nil, WrapExitError(ExitCommandError, "build runtime", err)
	}
	e.runtime = rt
	e.closers = append(e.closers, rt.Close)
	slog.Info("engine ready", "name", cfg.Engine.Name, "graph", graphPath, "nodes", g.Len(), "seed", seed)
	return e, nil
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, err := config.LoadEngineConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Port != 0 {
		cfg.Network.HTTPPort = opts.Port
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return WrapExitError(ExitCommandError, "load credentials", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Engine.Name, cfg.Telemetry.Endpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "telemetry", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	e, err := buildEngine(ctx, cfg, resolveGraph(opts.Config, cfg.Engine.Graph))
	if err != nil {
		return err
	}
	defer e.close()

	hostname, _ := os.Hostname()
	e.bus.Emit(events.LevelInfo, "system.startup", "sequencer starting", map[string]interface{}{
		"service":  "sequencer",
		"engine":   cfg.Engine.Name,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	if root := cfg.Engine.Root; root != "" {
		if _, err := e.runtime.Start(ctx, root); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("start traversal at %q", root), err)
		}
	}

	var mqttConnected func() bool
	if e.broker != nil {
		mqttConnected = e.broker.IsConnected
	}
	srv := api.New(api.Options{
		Name:          cfg.Engine.Name,
		Engine:        e.runtime,
		Events:        e.bus,
		History:       e.history,
		Credentials:   creds,
		TLS:           api.TLSFromEnv(),
		MQTTConnected: mqttConnected,
		Context:       ctx,
	})
	if !srv.AuthEnabled() {
		slog.Warn("API authentication disabled: NARRATIVE_ADMIN_USER and NARRATIVE_ADMIN_PASS not set")
	}

	serveErr := srv.ListenAndServe(ctx, cfg.HTTPPort())

	if e.runtime.Active() {
		_ = e.runtime.Stop()
	}
	e.bus.Emit(events.LevelInfo, "system.shutdown", "sequencer stopping", map[string]interface{}{
		"engine": cfg.Engine.Name,
	})
	if serveErr != nil {
		return WrapExitError(ExitFailure, "api server", serveErr)
	}
	return nil
}
