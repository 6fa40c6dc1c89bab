package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Keys the session record is stored under.
const (
	KeyCredential = "bingo_key"
	KeyOperator   = "bingo_is_operator"
	KeyDrawID     = "bingo_draw_id"
)

// Page is a navigation target.
type Page string

const (
	LoginPage Page = "login.html"
	MainPage  Page = "index.html"
)

// Navigator performs the redirects the gate decides on.
type Navigator interface {
	Navigate(page Page)
}

// Record is the persisted login state. An empty Key means logged out.
type Record struct {
	Key        string `json:"key"`
	IsOperator bool   `json:"is_operator"`
	DrawID     string `json:"draw_id"`
}

// LoggedIn reports whether a credential is present.
func (r Record) LoggedIn() bool {
	return r.Key != ""
}

// MaskKey hides all but the last four characters of a credential behind a
// fixed "****" prefix.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// Gate persists the session record and redirects when access is not allowed.
type Gate struct {
	store  Store
	nav    Navigator
	logger zerolog.Logger
}

// NewGate creates a gate over store that redirects through nav
func NewGate(store Store, nav Navigator, logger *zerolog.Logger) *Gate {
	g := &Gate{store: store, nav: nav, logger: zerolog.Nop()}
	if logger != nil {
		g.logger = logger.With().Str("component", "session").Logger()
	}
	return g
}

// Save writes the three session fields
func (g *Gate) Save(ctx context.Context, key string, isOperator bool, drawID string) error {
	fields := []struct{ k, v string }{
		{KeyCredential, key},
		{KeyOperator, fmt.Sprintf("%t", isOperator)},
		{KeyDrawID, drawID},
	}
	for _, f := range fields {
		if err := g.store.Set(ctx, f.k, f.v); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}

	g.logger.Info().Bool("operator", isOperator).Str("draw_id", drawID).Msg("session saved")
	return nil
}

// Load reads the session record back. Missing fields come back empty.
func (g *Gate) Load(ctx context.Context) (Record, error) {
	key, _, err := g.store.Get(ctx, KeyCredential)
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session: %w", err)
	}
	operator, _, err := g.store.Get(ctx, KeyOperator)
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session: %w", err)
	}
	drawID, _, err := g.store.Get(ctx, KeyDrawID)
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session: %w", err)
	}

	return Record{
		Key:        key,
		IsOperator: operator == "true",
		DrawID:     drawID,
	}, nil
}

// Logout clears all persisted state and sends the user to the login page.
// The redirect happens even when clearing fails.
func (g *Gate) Logout(ctx context.Context) error {
	err := g.store.Clear(ctx)
	if err != nil {
		err = fmt.Errorf("failed to clear session: %w", err)
		g.logger.Error().Err(err).Msg("logout")
	} else {
		g.logger.Info().Msg("logged out")
	}

	g.nav.Navigate(LoginPage)
	return err
}

// CheckAccess reports whether the stored session may see the current page.
// A missing credential redirects to the login page; a missing operator role,
// when one is required, redirects to the main page.
func (g *Gate) CheckAccess(ctx context.Context, requireOperator bool) (bool, error) {
	rec, err := g.Load(ctx)
	if err != nil {
		return false, err
	}

	if !rec.LoggedIn() {
		g.logger.Debug().Msg("no credential, redirecting to login")
		g.nav.Navigate(LoginPage)
		return false, nil
	}
	if requireOperator && !rec.IsOperator {
		g.logger.Debug().Msg("operator access required, redirecting to main page")
		g.nav.Navigate(MainPage)
		return false, nil
	}
	return true, nil
}

// Tracker is a Navigator for headless use: it remembers the current page
// instead of loading it.
type Tracker struct {
	mu      sync.RWMutex
	current Page
	visits  int
	logger  zerolog.Logger
}

// NewTracker creates a tracker positioned on start
func NewTracker(start Page, logger *zerolog.Logger) *Tracker {
	t := &Tracker{current: start, logger: zerolog.Nop()}
	if logger != nil {
		t.logger = logger.With().Str("component", "navigator").Logger()
	}
	return t
}

func (t *Tracker) Navigate(page Page) {
	t.mu.Lock()
	from := t.current
	t.current = page
	t.visits++
	t.mu.Unlock()

	t.logger.Info().Str("from", string(from)).Str("to", string(page)).Msg("redirect")
}

// Current returns the page last navigated to
func (t *Tracker) Current() Page {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Redirects returns how many times Navigate was called
func (t *Tracker) Redirects() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.visits
}

// ErrNoCredential is returned by helpers that need a stored key.
var ErrNoCredential = errors.New("session: no stored credential")
