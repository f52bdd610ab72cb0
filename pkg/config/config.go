// Package config loads wcferry client configuration from YAML files with
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ClientConfig represents the full client configuration
type ClientConfig struct {
	// CommandPort is the local TCP port the injected peer listens on for
	// command traffic.
	CommandPort int `yaml:"command_port" env:"WCFERRY_COMMAND_PORT"`
	// EventPort is the event stream port. Zero means CommandPort+1, which
	// is the peer's convention.
	EventPort int `yaml:"event_port" env:"WCFERRY_EVENT_PORT"`

	Injection InjectionConfig `yaml:"injection" envPrefix:"WCFERRY_INJECTION_"`
	Timeouts  TimeoutConfig   `yaml:"timeouts" envPrefix:"WCFERRY_TIMEOUT_"`
	Queue     QueueConfig     `yaml:"queue" envPrefix:"WCFERRY_QUEUE_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"WCFERRY_LOG_"`
	History   HistoryConfig   `yaml:"history" envPrefix:"WCFERRY_HISTORY_"`
}

// InjectionConfig represents injection settings
type InjectionConfig struct {
	// ProcessName is the executable name of the target process.
	ProcessName string `yaml:"process_name" env:"PROCESS_NAME"`
	// ModulePath is the path of the module to load into the target.
	ModulePath string `yaml:"module_path" env:"MODULE_PATH"`
}

// TimeoutConfig represents operation timeouts in seconds
type TimeoutConfig struct {
	ConnectSeconds int `yaml:"connect_seconds" env:"CONNECT_SECONDS"`
	SendSeconds    int `yaml:"send_seconds" env:"SEND_SECONDS"`
	ReadySeconds   int `yaml:"ready_seconds" env:"READY_SECONDS"`
}

// QueueConfig represents event delivery queue sizes
type QueueConfig struct {
	// SubscriberBuffer is the bounded per-subscriber delivery queue depth.
	SubscriberBuffer int `yaml:"subscriber_buffer" env:"SUBSCRIBER_BUFFER"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// HistoryConfig represents the optional local message history store
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		CommandPort: 10086,
		EventPort:   0,
		Injection: InjectionConfig{
			ProcessName: "WeChat.exe",
			ModulePath:  "spy.dll",
		},
		Timeouts: TimeoutConfig{
			ConnectSeconds: 5,
			SendSeconds:    5,
			ReadySeconds:   10,
		},
		Queue: QueueConfig{
			SubscriberBuffer: 128,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "./messages.db",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ClientConfig, error) {
	config := DefaultConfig()

	// Load from file if provided
	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, config *ClientConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// Validate checks the configuration for consistency
func (c *ClientConfig) Validate() error {
	if c.CommandPort <= 0 || c.CommandPort > 65535 {
		return fmt.Errorf("command_port %d out of range", c.CommandPort)
	}
	if c.EventPort < 0 || c.EventPort > 65535 {
		return fmt.Errorf("event_port %d out of range", c.EventPort)
	}
	if c.EventPort != 0 && c.EventPort == c.CommandPort {
		return fmt.Errorf("event_port must differ from command_port")
	}
	if c.Injection.ProcessName == "" {
		return fmt.Errorf("injection.process_name must not be empty")
	}
	if c.Injection.ModulePath == "" {
		return fmt.Errorf("injection.module_path must not be empty")
	}
	if c.Timeouts.ConnectSeconds <= 0 || c.Timeouts.SendSeconds <= 0 || c.Timeouts.ReadySeconds <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Queue.SubscriberBuffer <= 0 {
		return fmt.Errorf("queue.subscriber_buffer must be positive")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path must be set when history is enabled")
	}
	return nil
}

// ResolvedEventPort returns the effective event stream port.
func (c *ClientConfig) ResolvedEventPort() int {
	if c.EventPort != 0 {
		return c.EventPort
	}
	return c.CommandPort + 1
}

// String returns a printable summary without sensitive paths expanded
func (c *ClientConfig) String() string {
	return fmt.Sprintf("ClientConfig{command_port: %d, event_port: %d, process: %s, history: %t}",
		c.CommandPort, c.ResolvedEventPort(), c.Injection.ProcessName, c.History.Enabled)
}
