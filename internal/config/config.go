package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultSignalingURL = "ws://localhost:3000/ws"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultWidth        = 800
	DefaultHeight       = 600
	DefaultName         = "guest"
)

// Config holds client configuration
type Config struct {
	// SignalingURL is the websocket endpoint of the relay
	SignalingURL string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool

	// Whiteboard surface size in pixels
	Width  int
	Height int

	// Name is shown to the peer next to chat messages
	Name string

	// AudioOnly skips the video track
	AudioOnly bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	SignalingURL string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	Width        int
	Height       int
	Name         string
	AudioOnly    bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	signalingURL := firstNonEmpty(opts.SignalingURL, os.Getenv("SIGNALING_URL"), DefaultSignalingURL)
	u, err := url.Parse(signalingURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signaling url %q: %w", signalingURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid signaling url %q: scheme must be ws or wss", signalingURL)
	}

	stun := splitList(firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN))

	forceRelay := opts.ForceRelay
	if !forceRelay {
		forceRelay, _ = strconv.ParseBool(os.Getenv("FORCE_RELAY"))
	}

	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	height := opts.Height
	if height <= 0 {
		height = DefaultHeight
	}

	return &Config{
		SignalingURL: signalingURL,
		STUNServers:  stun,
		TURNServer:   firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:     firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:     firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:   forceRelay,
		Width:        width,
		Height:       height,
		Name:         firstNonEmpty(opts.Name, os.Getenv("MEET_NAME"), DefaultName),
		AudioOnly:    opts.AudioOnly,
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
