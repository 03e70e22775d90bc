// Command toolbridge serves many MCP backends through one MCP server that
// connects them on demand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolbridge/audit"
	"github.com/jonwraymond/toolbridge/backend"
	"github.com/jonwraymond/toolbridge/bridge"
	"github.com/jonwraymond/toolbridge/config"
	"github.com/jonwraymond/toolbridge/registry"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _              _ _          _     _
| |_ ___   ___ | | |__  _ __(_) __| | __ _  ___
| __/ _ \ / _ \| | '_ \| '__| |/ _' |/ _' |/ _ \
| || (_) | (_) | | |_) | |  | | (_| | (_| |  __/
 \__\___/ \___/|_|_.__/|_|  |_|\__,_|\__, |\___|
                                     |___/
`

// getConfigPath returns the path to the toolbridge config file.
// Priority: TOOLBRIDGE_CONFIG env var > XDG_CONFIG_HOME/toolbridge/config.yaml > ~/.config/toolbridge/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TOOLBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "toolbridge.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "toolbridge", "config.yaml")
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: toolbridge <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve     Serve the bridge over stdio, or HTTP with --http")
	fmt.Fprintln(os.Stderr, "  servers   List configured backends (--probe connects each one)")
	fmt.Fprintln(os.Stderr, "  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "servers":
		err = runServers(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, loads .env and reapplies environment
// overrides so that values from .env take effect.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if _, err := cfg.LoadDotenv(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newBroker(cfg *config.Config, recorder registry.Recorder, bootstrap []string, logger *slog.Logger) (*registry.Broker, error) {
	return registry.New(registry.Options{
		Loader: backend.FileLoader(cfg.Backends.File),
		Dialer: &registry.MCPDialer{
			ClientName:    cfg.Bridge.Name,
			ClientVersion: version,
			ScriptsRoot:   cfg.Backends.ScriptsDir,
		},
		Bootstrap:       bootstrap,
		ConnectTimeout:  cfg.Timeouts.Connect,
		CallTimeout:     cfg.Timeouts.Call,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
		Recorder:        recorder,
		Logger:          logger,
	})
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "config file")
	httpAddr := fs.String("http", "", "serve streamable HTTP on this address instead of stdio")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if cfg.Server.HTTPAddr != "" {
		printBanner(*configPath, cfg)
	}

	var (
		recorder registry.Recorder
		calls    bridge.CallLog
	)
	if cfg.Audit.Path != "" {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer store.Close()
		recorder, calls = store, store
	}

	broker, err := newBroker(cfg, recorder, cfg.Backends.AutoConnect, logger)
	if err != nil {
		return fmt.Errorf("creating broker: %w", err)
	}

	br, err := bridge.New(bridge.Options{
		Name:    cfg.Bridge.Name,
		Version: cfg.Bridge.Version,
		Broker:  broker,
		Calls:   calls,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer br.Close()

	logger.Info("starting toolbridge",
		"config", *configPath,
		"backends_file", cfg.Backends.File,
		"auto_connect", cfg.Backends.AutoConnect,
		"http_addr", cfg.Server.HTTPAddr,
	)
	report := broker.Initialize(ctx)
	logger.Info("bootstrap finished",
		"connected", report.Connected,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
	)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeouts.Shutdown)
		defer cancel()
		if err := broker.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown finished with errors", "error", err)
		}
	}()

	if cfg.Server.HTTPAddr != "" {
		return serveHTTP(ctx, cfg.Server.HTTPAddr, br, broker, logger)
	}
	err = br.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveHTTP(ctx context.Context, addr string, br *bridge.Bridge, broker *registry.Broker, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", br.HTTPHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := broker.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "endpoint", "/mcp")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func printBanner(configPath string, cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Fprint(os.Stderr, banner)
	gray.Fprintf(os.Stderr, "    version: %s\n\n", version)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Config:    %s\n", configPath)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Backends:  %s\n", cfg.Backends.File)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "HTTP:      %s/mcp\n", cfg.Server.HTTPAddr)
	fmt.Fprintln(os.Stderr)
}

func runServers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("servers", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "config file")
	probe := fs.Bool("probe", false, "connect every backend and report its tool count")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})

	broker, err := newBroker(cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	report := broker.Initialize(ctx)
	defer broker.Shutdown(context.WithoutCancel(ctx))
	if report.LoadErr != nil {
		color.Yellow("warning: %v", report.LoadErr)
	}

	statuses := broker.KnownBackends()
	if len(statuses) == 0 {
		fmt.Printf("No backends configured in %s\n", cfg.Backends.File)
		return nil
	}

	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for _, s := range statuses {
		d := s.Descriptor
		bold.Printf("%-20s", d.Name)
		gray.Printf(" %-6s", d.Kind())
		if *probe {
			res, err := broker.Connect(ctx, d.Name)
			if err != nil {
				red.Printf(" ✗ %v", err)
			} else {
				green.Printf(" ✓ %d tools", len(res.Tools))
			}
		}
		if d.Description != "" {
			fmt.Printf("  %s", d.Description)
		}
		fmt.Println()
	}
	return nil
}
