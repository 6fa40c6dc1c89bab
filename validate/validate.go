// Command validate checks the bingo client configuration profiles (*.toml)
// in a directory, "configs" by default. It checks:
//   - TOML syntax
//   - Keys that no setting reads (usually typos)
//   - Enum values, ranges and store requirements
//   - Settings that work but are likely mistakes, reported as warnings
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wricardo/bingo-client/config"
	"github.com/wricardo/bingo-client/transport/websocket"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateConfig loads and validates a single profile file
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	if _, err := os.Stat(filePath); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	unknown, err := config.UnknownKeys(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid TOML: %v", err))
		return result
	}
	for _, k := range unknown {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Unknown key: %s", k))
	}

	cfg, err := config.Load(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if err := cfg.Validate(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if !result.Valid {
		return result
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ Server: %s", websocket.ResolveURL(cfg.WebsocketEndpoint())))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Store: %s", describeStore(cfg.Store)))
	result.Errors = append(result.Errors, warnings(cfg)...)
	return result
}

func describeStore(s config.StoreConfig) string {
	switch s.Kind {
	case config.StoreFile:
		return fmt.Sprintf("file (%s)", s.Dir)
	case config.StoreRedis:
		return fmt.Sprintf("redis (%s)", s.Namespace)
	default:
		return s.Kind
	}
}

// warnings flags settings that are legal but probably unintended
func warnings(cfg config.Config) []string {
	var out []string

	mode, _ := websocket.ParseMode(cfg.Endpoint.Mode)
	if mode == websocket.ModeProduction && !cfg.Endpoint.Secure && cfg.Endpoint.URL == "" {
		out = append(out, "⚠ Production endpoint without TLS")
	}
	if mode == websocket.ModeLocal && cfg.Endpoint.Host != "" && cfg.Endpoint.Host != "localhost" {
		out = append(out, fmt.Sprintf("⚠ Host %q is ignored in local mode", cfg.Endpoint.Host))
	}
	if cfg.Timing.HeartbeatInterval >= time.Minute {
		out = append(out, fmt.Sprintf("⚠ Heartbeat every %s may exceed proxy idle timeouts", cfg.Timing.HeartbeatInterval))
	}
	if cfg.Timing.ReconnectDelay < 500*time.Millisecond {
		out = append(out, fmt.Sprintf("⚠ Reconnect delay %s will hammer an unreachable server", cfg.Timing.ReconnectDelay))
	}
	if cfg.Store.Kind == config.StoreMemory {
		out = append(out, "⚠ Memory store: the session is lost on restart")
	}
	if cfg.API.Addr != "" && !isLoopback(cfg.API.Addr) {
		out = append(out, fmt.Sprintf("⚠ Control API on %s is reachable from other hosts", cfg.API.Addr))
	}
	return out
}

func isLoopback(addr string) bool {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	host = strings.Trim(host, "[]")
	return host == "localhost" || strings.HasPrefix(host, "127.") || host == "::1"
}

// main scans the profile directory for *.toml files and validates each one,
// printing a concise report and exiting with non-zero status if any are invalid.
func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(configDir, "*.toml"))
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No *.toml profiles in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All configurations are valid!")
	} else {
		fmt.Println("❌ Some configurations have errors")
		os.Exit(1)
	}
}
