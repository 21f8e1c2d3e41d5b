package annotate

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFlushWindow is the batch boundary used when none is configured.
// It plays the role an animation frame plays in a renderer: enqueues inside
// one window coalesce into a single flush.
const DefaultFlushWindow = 50 * time.Millisecond

// Config holds all moneydollar configuration.
type Config struct {
	// FlushWindow is the rewrite batch boundary.
	FlushWindow time.Duration `yaml:"flush_window"`
	// DBPath is the SQLite file persisting the enabled flag.
	DBPath string `yaml:"db_path"`
	// Listen is the control server address.
	Listen string `yaml:"listen"`
	// Live configures real-browser attachment.
	Live LiveConfig `yaml:"live"`
	// MCPQuic configures the MCP-over-QUIC listener. Disabled when the
	// listen address is empty.
	MCPQuic MCPQuicConfig `yaml:"mcp_quic"`
}

// MCPQuicConfig controls the QUIC transport for MCP tools. Without a cert
// pair the listener uses an in-memory self-signed certificate.
type MCPQuicConfig struct {
	Listen string `yaml:"listen"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

// LiveConfig controls the go-rod page adapter.
type LiveConfig struct {
	// Remote is a DevTools websocket URL. Empty launches a local browser.
	Remote string `yaml:"remote"`
	// Stealth applies the stealth page setup. Default: true.
	Stealth *bool `yaml:"stealth"`
	// NavigateTimeout bounds page navigation. Default: 30s.
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// Defaults fills zero values in place.
func (c *Config) Defaults() {
	if c.FlushWindow <= 0 {
		c.FlushWindow = DefaultFlushWindow
	}
	if c.DBPath == "" {
		c.DBPath = "moneydollar.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8400"
	}
	if c.Live.NavigateTimeout <= 0 {
		c.Live.NavigateTimeout = 30 * time.Second
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Defaults()
	return cfg, nil
}
