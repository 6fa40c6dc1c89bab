package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/bingo-client/api"
	"github.com/wricardo/bingo-client/config"
	"github.com/wricardo/bingo-client/game/board"
	"github.com/wricardo/bingo-client/session"
	"github.com/wricardo/bingo-client/transport/mcp"
	"github.com/wricardo/bingo-client/transport/websocket"
)

// app holds the wired client: one connection, one session gate and the
// board mirror, all exposed through the control API.
type app struct {
	cfg    config.Config
	logger zerolog.Logger

	store   session.Store
	closers []func() error
	pages   *session.Tracker
	gate    *session.Gate
	client  *websocket.Client
	board   *board.Board
	api     *api.Server
}

// newApp builds every component from cfg. Nothing is dialed until start.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		closers: []func() error{closeStore},
		board:   board.New(),
	}

	a.pages = session.NewTracker(session.MainPage, &a.logger)
	a.gate = session.NewGate(store, a.pages, &a.logger)

	opts := cfg.ClientOptions()
	opts.Logger = &a.logger
	a.client = websocket.NewClient(opts)

	a.board.Attach(a.client)
	session.AutoLogin(ctx, a.client, a.gate)

	a.api = api.NewServer(a.client, a.gate, a.pages, a.board, &a.logger)
	return a, nil
}

// start opens the websocket connection in the background
func (a *app) start(ctx context.Context) {
	a.logger.Info().Str("url", a.client.URL()).Msg("connecting to draw server")
	a.client.Start(ctx)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// capture appends every inbound frame to path, one JSON document per line.
// The file is what cmd/analyze reads.
func (a *app) capture(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	a.closers = append(a.closers, f.Close)

	var mu sync.Mutex
	for _, action := range websocket.InboundActions() {
		a.client.On(action, func(e websocket.Envelope) {
			mu.Lock()
			defer mu.Unlock()
			line := append(append([]byte{}, e.Raw...), '\n')
			if _, err := f.Write(line); err != nil {
				a.logger.Warn().Err(err).Msg("capture write failed")
			}
		})
	}
	a.logger.Info().Str("file", path).Msg("capturing server frames")
	return nil
}

// handler combines the REST API with a POST /mcp endpoint that proxies tool
// calls back to the API at baseURL.
func (a *app) handler(baseURL string) http.Handler {
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", a.api)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

// openStore creates the session backend named by cfg. The returned close
// function is never nil.
func openStore(ctx context.Context, cfg config.StoreConfig) (session.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case config.StoreMemory, "":
		return session.NewMemoryStore(), noop, nil
	case config.StoreFile:
		fs, err := session.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case config.StoreRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rs, err := session.NewRedisStore(dialCtx, cfg.RedisURL, cfg.Namespace)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
