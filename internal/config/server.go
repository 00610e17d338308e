package config

import (
	"fmt"
	"os"
	"strconv"
)

// Relay defaults
const (
	DefaultPort           = 3000
	DefaultSendQueue      = 256
	DefaultMaxMessageSize = 64 * 1024
)

// ServerConfig holds relay configuration
type ServerConfig struct {
	// Port the HTTP server listens on
	Port int

	// StaticDir, when set, is served at /
	StaticDir string

	// AllowedOrigins restricts websocket upgrades; empty allows all
	AllowedOrigins []string

	// SendQueue is the per-connection outbound buffer; frames beyond it are dropped
	SendQueue int

	// MaxMessageSize bounds inbound frames
	MaxMessageSize int64
}

// ServerOptions carries flag overrides for LoadServer
type ServerOptions struct {
	Port      int
	StaticDir string
}

// LoadServer reads relay configuration: flags > environment > defaults.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	port := opts.Port
	if port == 0 {
		if env := os.Getenv("PORT"); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", env, err)
			}
			port = p
		}
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	return &ServerConfig{
		Port:           port,
		StaticDir:      firstNonEmpty(opts.StaticDir, os.Getenv("STATIC_DIR")),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		SendQueue:      DefaultSendQueue,
		MaxMessageSize: DefaultMaxMessageSize,
	}, nil
}

// Addr is the listen address for net/http.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
