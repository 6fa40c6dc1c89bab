package session

import (
	"context"
	"errors"

	"github.com/wricardo/bingo-client/transport/websocket"
)

// Conn is the part of the websocket client AutoLogin needs.
type Conn interface {
	On(action websocket.Action, l websocket.Listener)
	Login(key string) error
}

// StoredKey returns the persisted credential, or ErrNoCredential when the
// session is logged out.
func (g *Gate) StoredKey(ctx context.Context) (string, error) {
	key, ok, err := g.store.Get(ctx, KeyCredential)
	if err != nil {
		return "", err
	}
	if !ok || key == "" {
		return "", ErrNoCredential
	}
	return key, nil
}

// AutoLogin replays the stored credential every time conn opens and logs the
// session out when the server rejects it.
func AutoLogin(ctx context.Context, conn Conn, gate *Gate) {
	conn.On(websocket.EventConnected, func(websocket.Envelope) {
		key, err := gate.StoredKey(ctx)
		if errors.Is(err, ErrNoCredential) {
			return
		}
		if err != nil {
			gate.logger.Error().Err(err).Msg("auto-login: failed to read credential")
			return
		}
		if err := conn.Login(key); err != nil {
			gate.logger.Warn().Err(err).Msg("auto-login: send failed")
			return
		}
		gate.logger.Debug().Msg("auto-login sent")
	})

	conn.On(websocket.EventLoginError, func(e websocket.Envelope) {
		resp, _ := websocket.As[websocket.LoginResponse](e)
		gate.logger.Warn().Str("status", resp.Status).Str("message", resp.Message).Msg("login rejected")
		// Logout logs its own failure
		_ = gate.Logout(ctx)
	})
}
