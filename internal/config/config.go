// Package config loads server configuration from TOML file, .env files and environment.
//
// Precedence from lowest to highest: built-in defaults, TOML file, environment
// (populated from .env files when present), command line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath - config file location used when none is given.
const DefaultPath = "./chatsrv-config/server-config.toml"

// Environment variables overriding file values.
const (
	EnvIP             = "CHATSRV_IP"
	EnvPort           = "CHATSRV_PORT"
	EnvMaxConnections = "CHATSRV_MAX_CONNECTIONS"
	EnvMOTD           = "CHATSRV_MOTD"
	EnvLogChat        = "CHATSRV_LOG_CHAT"
	EnvMonitorListen  = "CHATSRV_MONITOR_LISTEN"
)

type (
	// Config - server configuration
	Config struct {
		General General `toml:"general"`
		Server  Server  `toml:"server"`
		Monitor Monitor `toml:"monitor"`
		Log     Log     `toml:"log"`
		Trace   Trace   `toml:"trace"`
	}

	// General - chat behaviour
	General struct {
		// Connections - max number of concurrent clients, -1 means no limit
		Connections       int           `toml:"connections" validate:"gte=-1"`
		MOTD              string        `toml:"motd" validate:"max=4096"`
		LogChatToConsole  bool          `toml:"log_chat_to_console"`
		KeepaliveInterval time.Duration `toml:"keepalive_interval" validate:"min_duration=100ms"`
		ShutdownGrace     time.Duration `toml:"shutdown_grace" validate:"gte=0"`
	}

	// Server - chat listener
	Server struct {
		IP   string `toml:"ip" validate:"required,ip"`
		Port int    `toml:"port" validate:"gte=0,lte=65535"`
	}

	// Monitor - HTTP operations surface
	Monitor struct {
		// Listen - address of HTTP listener, empty disables it
		Listen    string `toml:"listen" validate:"omitempty,listen"`
		WebSocket bool   `toml:"websocket"`
	}

	// Log - logger setup
	Log struct {
		Level  string `toml:"level" validate:"oneof=debug info warn error"`
		Format string `toml:"format" validate:"oneof=text json"`
		File   string `toml:"file"`
	}

	// Trace - connection spans export
	Trace struct {
		// Exporter - none disables tracing, stdout writes finished spans as JSON
		Exporter    string  `toml:"exporter" validate:"oneof=none stdout"`
		File        string  `toml:"file"`
		SampleRatio float64 `toml:"sample_ratio" validate:"gte=0,lte=1"`
	}
)

// Default - configuration used for missing values.
func Default() *Config {
	return &Config{
		General: General{
			Connections:       -1,
			MOTD:              "==============================\nWelcome to the chat relay!\n==============================",
			LogChatToConsole:  true,
			KeepaliveInterval: 20 * time.Second,
			ShutdownGrace:     5 * time.Second,
		},
		Server: Server{
			IP:   "0.0.0.0",
			Port: 2277,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Trace: Trace{
			Exporter:    "none",
			SampleRatio: 1,
		},
	}
}

const defaultFile = `# General settings
[general]
# connections: the maximum amount of clients that can connect at 1 time, -1 means no limit
connections = -1
# motd: message sent to every client after login
motd = "==============================\nWelcome to the chat relay!\n=============================="
# log_chat_to_console: print every chat message to the server log
log_chat_to_console = true
# keepalive_interval: silent clients are probed once per interval and dropped after two
keepalive_interval = "20s"
# shutdown_grace: time given to clients to leave when server stops
shutdown_grace = "5s"

# The IP and Port that the server should host on
[server]
ip = "0.0.0.0"
port = 2277

# HTTP surface with health, sessions and metrics, empty listen disables it
[monitor]
listen = ""
# websocket: accept chat clients over websocket at /ws
websocket = false

[log]
# level: debug, info, warn or error
level = "info"
# format: text or json
format = "text"
# file: optional log file, messages are also written to stdout
file = ""

# One span per client connection
[trace]
# exporter: none or stdout
exporter = "none"
# file: spans are written here instead of stdout when set
file = ""
# sample_ratio: share of connections traced, 0..1
sample_ratio = 1.0
`

// WriteDefaults - creates config file with default values, parent directories are created too.
func WriteDefaults(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config.WriteDefaults: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0o644); err != nil {
		return fmt.Errorf("config.WriteDefaults: %w", err)
	}
	return nil
}

// Load - reads config file, the file with default values is created if it does not exist.
// Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefaults(path); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config.Load: unknown key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv - populates process environment from .env files, missing files are ignored.
// Variables already present in environment are not overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config.LoadEnv: %w", err)
		}
	}
	return nil
}

// ApplyEnv - overrides values with environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	if v, ok := lookup(EnvIP); ok {
		c.Server.IP = v
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config.ApplyEnv: %s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvMaxConnections); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config.ApplyEnv: %s: %w", EnvMaxConnections, err)
		}
		c.General.Connections = n
	}
	if v, ok := lookup(EnvMOTD); ok {
		c.General.MOTD = v
	}
	if v, ok := lookup(EnvLogChat); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config.ApplyEnv: %s: %w", EnvLogChat, err)
		}
		c.General.LogChatToConsole = enabled
	}
	if v, ok := lookup(EnvMonitorListen); ok {
		c.Monitor.Listen = v
	}
	return nil
}

// ListenIP - chat listener address.
func (c *Config) ListenIP() string {
	return c.Server.IP
}

// ListenPort - chat listener port.
func (c *Config) ListenPort() int {
	return c.Server.Port
}

// Address - chat listener address in host:port form.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.IP, strconv.Itoa(c.Server.Port))
}

// MaxConnections - client limit, negative means unbounded.
func (c *Config) MaxConnections() int {
	return c.General.Connections
}

// MOTD - message of the day.
func (c *Config) MOTD() string {
	return c.General.MOTD
}

// LogChatToConsole - whether chat lines are written to server log.
func (c *Config) LogChatToConsole() bool {
	return c.General.LogChatToConsole
}
