// Command bingo-client is a headless client for a bingo draw server.
//
// It supports these commands:
//  1. "run" (default) – keeps a websocket connection to the draw server, replays
//     the stored login and serves the local control API plus an /mcp endpoint
//  2. "mcp" – runs an MCP stdio server backed by the local control API,
//     starting an internal one when none is listening
//  3. "session" and "config" – inspect or edit the stored session and the
//     configuration profiles without connecting
//
// Every flag can also be given as a BINGO_* environment variable, and a .env
// file in the working directory is loaded first.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/bingo-client/config"
	"github.com/wricardo/bingo-client/logging"
	"github.com/wricardo/bingo-client/session"
	"github.com/wricardo/bingo-client/transport/mcp"
	"github.com/wricardo/bingo-client/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Bingo Client"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "bingo-client",
		Usage:   AppName,
		Version: Version,
		Flags:   globalFlags(),
		Action:  runClient,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect to the draw server and serve the control API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "capture", Usage: "append every server frame to this file", Sources: cli.EnvVars("BINGO_CAPTURE")},
				},
				Action: runClient,
			},
			{
				Name:   "mcp",
				Usage:  "Run an MCP stdio server backed by the control API",
				Action: runStdioMCP,
			},
			sessionCommand(),
			configCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file (overrides --profile)", Sources: cli.EnvVars("BINGO_CONFIG")},
		&cli.StringFlag{Name: "profile", Value: config.DefaultProfile, Usage: "profile name in the config directory", Sources: cli.EnvVars("BINGO_PROFILE")},
		&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "directory of TOML profiles", Sources: cli.EnvVars("BINGO_CONFIG_DIR", "CONFIG_DIR")},
		&cli.StringFlag{Name: "url", Usage: "draw server URL, bypassing mode resolution", Sources: cli.EnvVars("BINGO_URL")},
		&cli.StringFlag{Name: "mode", Usage: "endpoint mode: local, development or production", Sources: cli.EnvVars("BINGO_MODE")},
		&cli.StringFlag{Name: "host", Usage: "draw server host", Sources: cli.EnvVars("BINGO_HOST")},
		&cli.IntFlag{Name: "port", Usage: "draw server port in development mode", Sources: cli.EnvVars("BINGO_PORT")},
		&cli.BoolFlag{Name: "secure", Usage: "use wss:// in production mode", Sources: cli.EnvVars("BINGO_SECURE")},
		&cli.StringFlag{Name: "store", Usage: "session store: memory, file or redis", Sources: cli.EnvVars("BINGO_STORE")},
		&cli.StringFlag{Name: "store-dir", Usage: "directory for the file store", Sources: cli.EnvVars("BINGO_STORE_DIR")},
		&cli.StringFlag{Name: "redis-url", Usage: "redis URL for the redis store", Sources: cli.EnvVars("BINGO_REDIS_URL", "REDIS_URL")},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error", Sources: cli.EnvVars("BINGO_LOG_LEVEL")},
		&cli.StringFlag{Name: "log-format", Usage: "console or json", Sources: cli.EnvVars("BINGO_LOG_FORMAT")},
		&cli.StringFlag{Name: "api-addr", Usage: "listen address of the control API", Sources: cli.EnvVars("BINGO_API_ADDR")},
	}
}

// loadConfig resolves the configuration: an explicit file, else the named
// profile, else the defaults. Flags that were set win over all of them.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)

	switch {
	case cmd.String("config") != "":
		cfg, err = config.Load(cmd.String("config"))
	default:
		cfg, err = loadProfile(cmd.String("config-dir"), cmd.String("profile"), cmd.IsSet("profile"))
	}
	if err != nil {
		return config.Config{}, err
	}

	applyFlags(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// loadProfile reads a profile from dir. A missing directory is only an error
// when the profile was asked for explicitly.
func loadProfile(dir, name string, explicit bool) (config.Config, error) {
	manager, err := config.NewManager(dir)
	if err != nil {
		if explicit {
			return config.Config{}, err
		}
		return config.Default(), nil
	}
	return manager.LoadConfig(name)
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	strs := []struct {
		flag string
		dst  *string
	}{
		{"url", &cfg.Endpoint.URL},
		{"mode", &cfg.Endpoint.Mode},
		{"host", &cfg.Endpoint.Host},
		{"store", &cfg.Store.Kind},
		{"store-dir", &cfg.Store.Dir},
		{"redis-url", &cfg.Store.RedisURL},
		{"log-level", &cfg.Log.Level},
		{"log-format", &cfg.Log.Format},
		{"api-addr", &cfg.API.Addr},
	}
	for _, s := range strs {
		if cmd.IsSet(s.flag) {
			*s.dst = strings.TrimSpace(cmd.String(s.flag))
		}
	}
	if cmd.IsSet("port") {
		cfg.Endpoint.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("secure") {
		cfg.Endpoint.Secure = cmd.Bool("secure")
	}
}

// setup loads the configuration and builds the logger every command shares
func setup(cmd *cli.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// runClient connects to the draw server and serves the control API until
// SIGINT or SIGTERM.
func runClient(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	logger.Info().Str("version", Version).Msg("starting " + AppName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	defer a.close()

	if path := cmd.String("capture"); path != "" {
		if err := a.capture(path); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      a.handler("http://" + cfg.API.Addr),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Handle shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("control API listening")
		logger.Info().Msgf("REST API: http://%s/api", cfg.API.Addr)
		logger.Info().Msgf("MCP endpoint: http://%s/mcp", cfg.API.Addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.start(ctx)

	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("control API failed: %w", err)
		}
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("control API shutdown error")
	}
	logger.Info().Msg("client stopped")
	return nil
}

// runStdioMCP serves MCP over stdio. It reuses a control API already listening
// on the configured address; otherwise it connects to the draw server itself
// and serves an internal API on a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	baseURL := "http://" + cfg.API.Addr
	if apiAvailable(baseURL) {
		logger.Info().Str("url", baseURL).Msg("external control API found, using it for MCP")
	} else {
		logger.Info().Msg("no control API found, starting internal one")

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize client: %w", err)
		}
		defer a.close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		httpServer := &http.Server{Handler: a.api}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("internal control API error")
			}
		}()
		defer httpServer.Close()

		a.start(ctx)
		logger.Info().Str("url", baseURL).Msg("internal control API ready")
	}

	mcpClient := mcp.NewClient(baseURL)
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func apiAvailable(baseURL string) bool {
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// openGate builds a session gate over the configured store for the offline
// session commands.
func openGate(ctx context.Context, cmd *cli.Command) (*session.Gate, *session.Tracker, func(), error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, nil, err
	}
	tracker := session.NewTracker(session.MainPage, &logger)
	done := func() { closeStore() }
	return session.NewGate(store, tracker, &logger), tracker, done, nil
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Inspect or edit the stored session",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the stored session",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gate, _, done, err := openGate(ctx, cmd)
					if err != nil {
						return err
					}
					defer done()

					rec, err := gate.Load(ctx)
					if err != nil {
						return err
					}
					printSession(cmd, rec)
					return nil
				},
			},
			{
				Name:  "save",
				Usage: "Store a credential",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "login key", Required: true},
					&cli.BoolFlag{Name: "operator", Usage: "grant the operator role"},
					&cli.StringFlag{Name: "draw-id", Usage: "draw identifier"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gate, _, done, err := openGate(ctx, cmd)
					if err != nil {
						return err
					}
					defer done()

					if err := gate.Save(ctx, cmd.String("key"), cmd.Bool("operator"), cmd.String("draw-id")); err != nil {
						return err
					}
					fmt.Fprintln(cmd.Root().Writer, "✅ session saved")
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear the stored session",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gate, _, done, err := openGate(ctx, cmd)
					if err != nil {
						return err
					}
					defer done()

					if err := gate.Logout(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.Root().Writer, "✅ logged out")
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "Check whether the stored session may open a page",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "operator", Usage: "require the operator role"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gate, tracker, done, err := openGate(ctx, cmd)
					if err != nil {
						return err
					}
					defer done()

					allowed, err := gate.CheckAccess(ctx, cmd.Bool("operator"))
					if err != nil {
						return err
					}
					if !allowed {
						return cli.Exit(fmt.Sprintf("❌ access denied, redirected to %s", tracker.Current()), 2)
					}
					fmt.Fprintln(cmd.Root().Writer, "✅ access allowed")
					return nil
				},
			},
		},
	}
}

func printSession(cmd *cli.Command, rec session.Record) {
	w := cmd.Root().Writer
	if !rec.LoggedIn() {
		fmt.Fprintln(w, "logged out")
		return
	}
	fmt.Fprintf(w, "key:      %s\n", session.MaskKey(rec.Key))
	fmt.Fprintf(w, "operator: %t\n", rec.IsOperator)
	fmt.Fprintf(w, "draw id:  %s\n", rec.DrawID)
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration profiles",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the resolved configuration as TOML",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					data, err := config.Encode(cfg)
					if err != nil {
						return err
					}
					w := cmd.Root().Writer
					fmt.Fprintf(w, "# server: %s\n", websocket.ResolveURL(cfg.WebsocketEndpoint()))
					_, err = w.Write(data)
					return err
				},
			},
			{
				Name:  "list",
				Usage: "List the profiles in the config directory",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					manager, err := config.NewManager(cmd.String("config-dir"))
					if err != nil {
						return err
					}
					profiles, err := manager.ListConfigs()
					if err != nil {
						return err
					}
					w := cmd.Root().Writer
					if len(profiles) == 0 {
						fmt.Fprintf(w, "no profiles in %s\n", manager.Dir())
						return nil
					}
					for _, p := range profiles {
						fmt.Fprintf(w, "%-16s %-12s %-8s %s\n", p.Name, p.Mode, p.Store, p.URL)
					}
					return nil
				},
			},
			{
				Name:      "init",
				Usage:     "Write the resolved configuration as a new profile",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing profile"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return cli.Exit("profile name is required", 1)
					}

					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}

					dir := cmd.String("config-dir")
					if err := os.MkdirAll(dir, 0755); err != nil {
						return fmt.Errorf("failed to create config directory: %w", err)
					}
					manager, err := config.NewManager(dir)
					if err != nil {
						return err
					}
					path := filepath.Join(manager.Dir(), strings.TrimSuffix(name, ".toml")+".toml")
					if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
						return cli.Exit(fmt.Sprintf("profile %s already exists (use --force)", name), 1)
					}
					if err := manager.SaveConfig(name, cfg); err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "✅ wrote profile %s to %s\n", name, dir)
					return nil
				},
			},
		},
	}
}
