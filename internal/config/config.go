// Package config loads server and client settings from defaults, an optional
// YAML file and PLACE_* environment variables. Command-line flags are applied
// on top by the cmd packages.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/place/internal/protocol"
)

// Server holds the canvas server settings.
type Server struct {
	Addr           string        `yaml:"addr"`            // TCP listen address, e.g. ":8000"
	Dimension      int           `yaml:"dimension"`       // Board rows and columns
	HTTPAddr       string        `yaml:"http_addr"`       // Metrics/websocket listener, empty disables
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // Per-envelope write budget
	LoginTimeout   time.Duration `yaml:"login_timeout"`   // Time allowed before LOGIN arrives
	OutboundBuffer int           `yaml:"outbound_buffer"` // Queued envelopes per session before it is dropped
	ChangeInterval time.Duration `yaml:"change_interval"` // Minimum spacing of changes per session, 0 disables
	MaxFrameSize   int           `yaml:"max_frame_size"`  // Largest payload in bytes, either direction; bounds Dimension
	LogLevel       string        `yaml:"log_level"`       // debug, info, warn or error
}

// Client holds the settings shared by the console client and agents.
type Client struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Name         string        `yaml:"name"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	Interval     time.Duration `yaml:"interval"` // Agent tick
	MaxFrameSize int           `yaml:"max_frame_size"`
	LogLevel     string        `yaml:"log_level"`
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Addr:           ":8000",
		Dimension:      10,
		WriteTimeout:   2 * time.Second,
		LoginTimeout:   10 * time.Second,
		OutboundBuffer: 256,
		MaxFrameSize:   protocol.DefaultMaxFrameSize,
		LogLevel:       "info",
	}
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		Host:         "localhost",
		Port:         8000,
		DialTimeout:  5 * time.Second,
		Interval:     500 * time.Millisecond,
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		LogLevel:     "warn",
	}
}

// LoadServer builds a server configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if err := loadFile(path, &cfg); err != nil {
		return Server{}, err
	}

	var err error
	cfg.Addr = getenv("PLACE_ADDR", cfg.Addr)
	cfg.HTTPAddr = getenv("PLACE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getenv("PLACE_LOG_LEVEL", cfg.LogLevel)
	if cfg.Dimension, err = getenvInt("PLACE_DIMENSION", cfg.Dimension); err != nil {
		return Server{}, err
	}
	if cfg.OutboundBuffer, err = getenvInt("PLACE_OUTBOUND_BUFFER", cfg.OutboundBuffer); err != nil {
		return Server{}, err
	}
	if cfg.MaxFrameSize, err = getenvInt("PLACE_MAX_FRAME", cfg.MaxFrameSize); err != nil {
		return Server{}, err
	}
	if cfg.WriteTimeout, err = getenvDuration("PLACE_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return Server{}, err
	}
	if cfg.LoginTimeout, err = getenvDuration("PLACE_LOGIN_TIMEOUT", cfg.LoginTimeout); err != nil {
		return Server{}, err
	}
	if cfg.ChangeInterval, err = getenvDuration("PLACE_CHANGE_INTERVAL", cfg.ChangeInterval); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// LoadClient builds a client configuration the same way LoadServer does.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if err := loadFile(path, &cfg); err != nil {
		return Client{}, err
	}

	var err error
	cfg.Host = getenv("PLACE_HOST", cfg.Host)
	cfg.Name = getenv("PLACE_NAME", cfg.Name)
	cfg.LogLevel = getenv("PLACE_LOG_LEVEL", cfg.LogLevel)
	if cfg.Port, err = getenvInt("PLACE_PORT", cfg.Port); err != nil {
		return Client{}, err
	}
	if cfg.DialTimeout, err = getenvDuration("PLACE_DIAL_TIMEOUT", cfg.DialTimeout); err != nil {
		return Client{}, err
	}
	if cfg.Interval, err = getenvDuration("PLACE_INTERVAL", cfg.Interval); err != nil {
		return Client{}, err
	}
	if cfg.MaxFrameSize, err = getenvInt("PLACE_MAX_FRAME", cfg.MaxFrameSize); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid server setting.
func (s Server) Validate() error {
	switch {
	case s.Addr == "":
		return errors.New("config: listen address is required")
	case s.Dimension < 1:
		return fmt.Errorf("config: dimension must be positive, got %d", s.Dimension)
	case s.WriteTimeout <= 0:
		return fmt.Errorf("config: write timeout must be positive, got %s", s.WriteTimeout)
	case s.LoginTimeout <= 0:
		return fmt.Errorf("config: login timeout must be positive, got %s", s.LoginTimeout)
	case s.OutboundBuffer < 1:
		return fmt.Errorf("config: outbound buffer must be at least 1, got %d", s.OutboundBuffer)
	case s.ChangeInterval < 0:
		return fmt.Errorf("config: change interval cannot be negative, got %s", s.ChangeInterval)
	case s.MaxFrameSize < 1:
		return fmt.Errorf("config: max frame size must be positive, got %d", s.MaxFrameSize)
	case s.Dimension > protocol.MaxBoardDimension(s.MaxFrameSize):
		// The BOARD sent at login must fit in one frame however the board is painted
		return fmt.Errorf("config: dimension %d too large for max frame size %d (at most %d)",
			s.Dimension, s.MaxFrameSize, protocol.MaxBoardDimension(s.MaxFrameSize))
	}
	return nil
}

// Validate reports the first invalid client setting.
func (c Client) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("config: host is required")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("config: port out of range: %d", c.Port)
	case c.Name == "":
		return errors.New("config: name is required")
	case !protocol.ValidIdentity(c.Name):
		return fmt.Errorf("config: name longer than %d bytes", protocol.MaxIdentityLength)
	case c.DialTimeout <= 0:
		return fmt.Errorf("config: dial timeout must be positive, got %s", c.DialTimeout)
	case c.Interval <= 0:
		return fmt.Errorf("config: interval must be positive, got %s", c.Interval)
	case c.MaxFrameSize < 1:
		return fmt.Errorf("config: max frame size must be positive, got %d", c.MaxFrameSize)
	}
	return nil
}

// Address joins host and port for dialing.
func (c Client) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func loadFile(path string, out any) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// getenv returns the value of an environment variable or a default value.
// Empty values are treated as unset.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}

func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return d, nil
}
