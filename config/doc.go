// Package config provides configuration loading for the bingo client.
//
// The config package handles:
//   - Loading TOML files on top of built-in defaults
//   - Validation of enums, ranges and backend requirements
//   - Named profiles kept in a directory and cached after first load
//   - Conversion into websocket client options
//
// Configuration Format:
//
//	[endpoint]
//	mode = "production"        # local | development | production
//	host = "bingo.example.com"
//	port = 3000                # development mode only
//	path = "/ws"               # production mode only
//	secure = true
//	url = ""                   # explicit override, wins over everything
//
//	[timing]
//	reconnect_delay = "3s"
//	heartbeat_interval = "25s"
//	write_wait = "10s"
//
//	[store]
//	kind = "file"              # memory | file | redis
//	dir = ".bingo"
//	redis_url = "redis://localhost:6379/0"
//	namespace = "bingo:session"
//
//	[log]
//	level = "info"
//	format = "console"         # console | json
//
//	[api]
//	addr = "127.0.0.1:8081"
//
// Only keys present in the file override defaults, so an explicit empty
// value is honored.
//
// Usage:
//
//	cfg, err := config.Load("bingo.toml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	client := websocket.NewClient(cfg.ClientOptions())
//
//	// Named profiles
//	manager, err := config.NewManager("configs")
//	prod, err := manager.LoadConfig("prod")
package config
