package websocket

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Mode describes where the client is deployed relative to the draw server.
type Mode string

const (
	// ModeLocal: no page host is known; the server runs on this machine.
	ModeLocal Mode = "local"
	// ModeDevelopment: the server listens on a dedicated port of the page host.
	ModeDevelopment Mode = "development"
	// ModeProduction: the server sits behind a reverse proxy on a routed path.
	ModeProduction Mode = "production"
)

const (
	DefaultPort = 3000
	DefaultPath = "/ws"
)

// Endpoint holds the deployment context used to pick the server URL.
type Endpoint struct {
	Mode     Mode
	Host     string
	Port     int
	Path     string
	Secure   bool
	Override string
}

// ResolveURL returns the WebSocket URL for the deployment context. An explicit
// override always wins.
func ResolveURL(e Endpoint) string {
	if e.Override != "" {
		return e.Override
	}

	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	host := e.Host
	if host == "" {
		host = "localhost"
	}

	switch e.Mode {
	case ModeProduction:
		scheme := "ws"
		if e.Secure {
			scheme = "wss"
		}
		path := e.Path
		if path == "" {
			path = DefaultPath
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		u := url.URL{Scheme: scheme, Host: host, Path: path}
		return u.String()

	case ModeDevelopment:
		return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))

	default:
		return "ws://" + net.JoinHostPort("localhost", strconv.Itoa(port))
	}
}

// ParseMode accepts the names used in config files and flags.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeDevelopment, ModeProduction:
		return m, nil
	case "file":
		return ModeLocal, nil
	case "dev", "":
		return ModeDevelopment, nil
	case "prod":
		return ModeProduction, nil
	}
	return "", fmt.Errorf("websocket: unknown deployment mode %q", s)
}
