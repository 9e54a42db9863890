// Package config loads and validates the static snapzone configuration:
// zones, clients, protocol integrations, and reconciliation tuning.
// The configuration is read once at startup; runtime state never lives here.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Zone is the static definition of a logical room. Identity is immutable;
// runtime state lives in the state store.
type Zone struct {
	Index  int    `mapstructure:"index"`
	Name   string `mapstructure:"name"`
	Stream string `mapstructure:"stream"`
	Icon   string `mapstructure:"icon"`
}

// Client is the static definition of a playback endpoint. DeviceID is the
// opaque identifier the audio-topology server uses for the endpoint.
type Client struct {
	Index       int    `mapstructure:"index"`
	Name        string `mapstructure:"name"`
	DeviceID    string `mapstructure:"device_id"`
	DefaultZone int    `mapstructure:"default_zone"`
}

// BusAddress maps one (entity, index, field) triple to a control-bus
// datapoint. Width is the datapoint size in bytes (1 or 2).
type BusAddress struct {
	Entity  string `mapstructure:"entity"` // "zone" | "client"
	Index   int    `mapstructure:"index"`
	Field   string `mapstructure:"field"`
	Address string `mapstructure:"address"`
	Width   int    `mapstructure:"width"`
}

// SnapcastConfig configures the connection to the audio-topology server.
type SnapcastConfig struct {
	// Address is host:port of the JSON-RPC control port. Empty enables
	// mDNS discovery.
	Address       string        `mapstructure:"address"`
	Discover      bool          `mapstructure:"discover"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// BrokerConfig configures the message-broker integration.
type BrokerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	// TopicRoot is the leading path segment of every published topic,
	// e.g. "snapzone" -> "snapzone/zones/1/volume".
	TopicRoot string `mapstructure:"topic_root"`
	// CommandPrefix is the subject prefix for inbound command messages.
	CommandPrefix string `mapstructure:"command_prefix"`
}

// ControlBusConfig configures the building-automation bus integration.
type ControlBusConfig struct {
	Enabled   bool         `mapstructure:"enabled"`
	Addresses []BusAddress `mapstructure:"addresses"`
}

// ReconcileConfig tunes the periodic topology reconciliation.
type ReconcileConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// GraceWindow is how long an explicit assignment command shields a
	// client from drift correction. Keep it a few multiples of Interval.
	GraceWindow     time.Duration `mapstructure:"grace_window"`
	MaxMovesPerTick int           `mapstructure:"max_moves_per_tick"`
}

// HTTPConfig configures the status/push HTTP listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is the complete static configuration.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Snapcast   SnapcastConfig   `mapstructure:"snapcast"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	ControlBus ControlBusConfig `mapstructure:"control_bus"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Zones      []Zone           `mapstructure:"zones"`
	Clients    []Client         `mapstructure:"clients"`
}

// Load reads configuration from the given YAML file and SNAPZONE_* environment
// variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http.addr", ":8090")
	v.SetDefault("snapcast.address", "")
	v.SetDefault("snapcast.discover", true)
	v.SetDefault("snapcast.timeout", "5s")
	v.SetDefault("snapcast.reconnect_wait", "5s")
	v.SetDefault("broker.enabled", false)
	v.SetDefault("broker.url", "nats://127.0.0.1:4222")
	v.SetDefault("broker.topic_root", "snapzone")
	v.SetDefault("broker.command_prefix", "snapzone.command")
	v.SetDefault("control_bus.enabled", false)
	v.SetDefault("reconcile.interval", "5s")
	v.SetDefault("reconcile.grace_window", "15s")
	v.SetDefault("reconcile.max_moves_per_tick", 8)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SNAPZONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Warn("config file not found, using defaults and environment", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// busFields are the change-event fields a bus address may bind to.
var busFields = map[string]bool{
	"volume":     true,
	"mute":       true,
	"playlist":   true,
	"track":      true,
	"playback":   true,
	"connection": true,
	"zone":       true,
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if len(c.Zones) == 0 {
		return fmt.Errorf("config: at least one zone is required")
	}

	zoneIdx := make(map[int]bool, len(c.Zones))
	streams := make(map[string]int, len(c.Zones))
	for _, z := range c.Zones {
		if z.Index <= 0 {
			return fmt.Errorf("config: zone %q: index must be a positive integer", z.Name)
		}
		if zoneIdx[z.Index] {
			return fmt.Errorf("config: duplicate zone index %d", z.Index)
		}
		zoneIdx[z.Index] = true
		if z.Stream == "" {
			return fmt.Errorf("config: zone %d: stream is required", z.Index)
		}
		if other, ok := streams[z.Stream]; ok {
			return fmt.Errorf("config: zones %d and %d share stream %q", other, z.Index, z.Stream)
		}
		streams[z.Stream] = z.Index
	}

	clientIdx := make(map[int]bool, len(c.Clients))
	devices := make(map[string]bool, len(c.Clients))
	for _, cl := range c.Clients {
		if cl.Index <= 0 {
			return fmt.Errorf("config: client %q: index must be a positive integer", cl.Name)
		}
		if clientIdx[cl.Index] {
			return fmt.Errorf("config: duplicate client index %d", cl.Index)
		}
		clientIdx[cl.Index] = true
		if cl.DeviceID == "" {
			return fmt.Errorf("config: client %d: device_id is required", cl.Index)
		}
		if devices[cl.DeviceID] {
			return fmt.Errorf("config: duplicate device_id %q", cl.DeviceID)
		}
		devices[cl.DeviceID] = true
		if cl.DefaultZone != 0 && !zoneIdx[cl.DefaultZone] {
			return fmt.Errorf("config: client %d: default_zone %d is not a configured zone", cl.Index, cl.DefaultZone)
		}
	}

	for _, a := range c.ControlBus.Addresses {
		switch a.Entity {
		case "zone":
			if !zoneIdx[a.Index] {
				return fmt.Errorf("config: bus address %q: zone %d is not configured", a.Address, a.Index)
			}
		case "client":
			if !clientIdx[a.Index] {
				return fmt.Errorf("config: bus address %q: client %d is not configured", a.Address, a.Index)
			}
		default:
			return fmt.Errorf("config: bus address %q: entity must be zone or client", a.Address)
		}
		if !busFields[a.Field] {
			return fmt.Errorf("config: bus address %q: unknown field %q", a.Address, a.Field)
		}
		if a.Width != 1 && a.Width != 2 {
			return fmt.Errorf("config: bus address %q: width must be 1 or 2 bytes", a.Address)
		}
	}

	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("config: reconcile.interval must be positive")
	}
	if c.Reconcile.GraceWindow <= 0 {
		return fmt.Errorf("config: reconcile.grace_window must be positive")
	}
	if c.Reconcile.MaxMovesPerTick <= 0 {
		return fmt.Errorf("config: reconcile.max_moves_per_tick must be positive")
	}
	return nil
}

// Zone returns the zone configured at index.
func (c *Config) Zone(index int) (*Zone, bool) {
	for i := range c.Zones {
		if c.Zones[i].Index == index {
			return &c.Zones[i], true
		}
	}
	return nil, false
}

// Client returns the client configured at index.
func (c *Config) Client(index int) (*Client, bool) {
	for i := range c.Clients {
		if c.Clients[i].Index == index {
			return &c.Clients[i], true
		}
	}
	return nil, false
}

// ClientByDevice returns the client configured with the given external
// device identifier.
func (c *Config) ClientByDevice(deviceID string) (*Client, bool) {
	for i := range c.Clients {
		if c.Clients[i].DeviceID == deviceID {
			return &c.Clients[i], true
		}
	}
	return nil, false
}

// ZoneByStream returns the zone bound to the given stream identifier.
func (c *Config) ZoneByStream(streamID string) (*Zone, bool) {
	for i := range c.Zones {
		if c.Zones[i].Stream == streamID {
			return &c.Zones[i], true
		}
	}
	return nil, false
}
