// Package config loads relay configuration from YAML with environment
// overrides and sensible defaults.
package config

import (
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Relay Relay `yaml:"relay"`
	Hooks Hooks `yaml:"hooks"`
	Admin Admin `yaml:"admin"`
}

// Relay tunes the transport fabric. Queue capacities are part of the
// protocol's backpressure contract; change them with care.
type Relay struct {
	// ReadBufferSize is the size of the socket read buffer on both the node
	// and the relayer side.
	ReadBufferSize int `yaml:"read_buffer_size"`
	// InputQueueSize bounds each node's input and output channels.
	InputQueueSize int `yaml:"input_queue_size"`
	// OutboundQueueSize bounds the per-node outbound queue on the relayer.
	OutboundQueueSize int `yaml:"outbound_queue_size"`
	// RegisterQueueSize bounds the session and relayer register channels.
	RegisterQueueSize int `yaml:"register_queue_size"`
	// TaskQueueSize bounds the post-receive task register channel.
	TaskQueueSize int `yaml:"task_queue_size"`
	// CompatFraming disables the carry buffer in the stream decoder, making
	// each socket read decode in isolation as the original wire protocol did.
	CompatFraming bool `yaml:"compat_framing"`
	// HandshakeFallbackSleepSec is how long registration waits for a node
	// listener that never signals readiness before dialing anyway.
	HandshakeFallbackSleepSec int `yaml:"handshake_fallback_sleep_sec"`
}

type Hooks struct {
	// WorkerCount sizes the shared post-receive worker pool.
	WorkerCount int `yaml:"worker_count"`
}

type Admin struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Load reads the YAML file at path, then applies environment overrides and
// defaults. A missing file is not fatal; the defaults stand alone.
func Load(path string) *Config {
	cfg, err := loadFile(path)
	if err != nil {
		slog.Warn("config: failed to load config file, using defaults", "path", path, "error", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg
}

func loadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := getEnvInt("RELAY_READ_BUFFER_SIZE", 0); v > 0 {
		c.Relay.ReadBufferSize = v
	}
	if v := getEnvInt("RELAY_INPUT_QUEUE_SIZE", 0); v > 0 {
		c.Relay.InputQueueSize = v
	}
	if v := getEnvInt("RELAY_OUTBOUND_QUEUE_SIZE", 0); v > 0 {
		c.Relay.OutboundQueueSize = v
	}
	c.Relay.CompatFraming = getEnvBool("RELAY_COMPAT_FRAMING", c.Relay.CompatFraming)
	if v := getEnvInt("RELAY_HANDSHAKE_FALLBACK_SLEEP_SEC", 0); v > 0 {
		c.Relay.HandshakeFallbackSleepSec = v
	}
	if v := getEnvInt("HOOK_WORKERS", 0); v > 0 {
		c.Hooks.WorkerCount = v
	}
	c.Admin.Enabled = getEnvBool("ADMIN_ENABLED", c.Admin.Enabled)
	c.Admin.Port = getEnv("ADMIN_PORT", c.Admin.Port)
}

func (c *Config) applyDefaults() {
	if c.Relay.ReadBufferSize == 0 {
		c.Relay.ReadBufferSize = 4096
	}
	if c.Relay.InputQueueSize == 0 {
		c.Relay.InputQueueSize = 32
	}
	if c.Relay.OutboundQueueSize == 0 {
		c.Relay.OutboundQueueSize = 16
	}
	if c.Relay.RegisterQueueSize == 0 {
		c.Relay.RegisterQueueSize = 32
	}
	if c.Relay.TaskQueueSize == 0 {
		c.Relay.TaskQueueSize = 8
	}
	if c.Relay.HandshakeFallbackSleepSec == 0 {
		c.Relay.HandshakeFallbackSleepSec = 1
	}
	if c.Hooks.WorkerCount == 0 {
		c.Hooks.WorkerCount = 2
	}
	if c.Admin.Port == "" {
		c.Admin.Port = "8080"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
