// Package config loads bridge settings from thermal-bridge.toml and TB_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete bridge configuration.
type Config struct {
	App       AppConfig
	Log       LogConfig
	Discovery DiscoveryConfig
	Session   SessionConfig
	Render    RenderConfig
	Rongta    RongtaConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port int
	// RegistryPath persists known printers and their names. Empty keeps them
	// in memory; the server then places printer_registry.json itself.
	RegistryPath string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type DiscoveryConfig struct {
	BluetoothWindow  time.Duration
	NetworkTimeout   time.Duration
	BroadcastAddress string
	EpsonProbePort   int
	StarProbePort    int
	RongtaProbePort  int
	// TCPSweep also dials the raw port on every host of the local /24.
	TCPSweep     bool
	RawPort      int
	USBAllowList []string // "VID:PID" in hex
	// MonitorInterval is the USB presence poll interval. Zero disables it.
	MonitorInterval time.Duration
}

type SessionConfig struct {
	ConnectTimeout     time.Duration
	CompletionTimeout  time.Duration
	PollInitialDelay   time.Duration
	PollInterval       time.Duration
	DisconnectAttempts int
	DisconnectDelay    time.Duration
}

type RenderConfig struct {
	Threshold int
	Diffusion bool
}

type RongtaConfig struct {
	PaperWidthDots int
	DefaultPort    int
}

// Load reads configuration.
//
// Priority (highest to lowest):
// 1. Environment variables with TB_ prefix (e.g., TB_APP_PORT)
// 2. thermal-bridge.toml in the working directory or $HOME/.thermal-bridge
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("thermal-bridge")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.thermal-bridge")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return build(v)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("TB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:         v.GetString("app.name"),
			Env:          v.GetString("app.env"),
			Port:         v.GetInt("app.port"),
			RegistryPath: v.GetString("app.registry_path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Discovery: DiscoveryConfig{
			BluetoothWindow:  v.GetDuration("discovery.bluetooth_window"),
			NetworkTimeout:   v.GetDuration("discovery.network_timeout"),
			BroadcastAddress: v.GetString("discovery.broadcast_address"),
			EpsonProbePort:   v.GetInt("discovery.epson_probe_port"),
			StarProbePort:    v.GetInt("discovery.star_probe_port"),
			RongtaProbePort:  v.GetInt("discovery.rongta_probe_port"),
			TCPSweep:         v.GetBool("discovery.tcp_sweep"),
			RawPort:          v.GetInt("discovery.raw_port"),
			USBAllowList:     v.GetStringSlice("discovery.usb_allow_list"),
			MonitorInterval:  v.GetDuration("discovery.monitor_interval"),
		},
		Session: SessionConfig{
			ConnectTimeout:     v.GetDuration("session.connect_timeout"),
			CompletionTimeout:  v.GetDuration("session.completion_timeout"),
			PollInitialDelay:   v.GetDuration("session.poll_initial_delay"),
			PollInterval:       v.GetDuration("session.poll_interval"),
			DisconnectAttempts: v.GetInt("session.disconnect_attempts"),
			DisconnectDelay:    v.GetDuration("session.disconnect_delay"),
		},
		Render: RenderConfig{
			Threshold: v.GetInt("render.threshold"),
			Diffusion: v.GetBool("render.diffusion"),
		},
		Rongta: RongtaConfig{
			PaperWidthDots: v.GetInt("rongta.paper_width_dots"),
			DefaultPort:    v.GetInt("rongta.default_port"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "thermal-bridge"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 12212
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}

	d := &cfg.Discovery
	if d.BluetoothWindow == 0 {
		d.BluetoothWindow = 30 * time.Second
	}
	if d.NetworkTimeout == 0 {
		d.NetworkTimeout = 10 * time.Second
	}
	if d.BroadcastAddress == "" {
		d.BroadcastAddress = "255.255.255.255"
	}
	if d.EpsonProbePort == 0 {
		d.EpsonProbePort = 3289
	}
	if d.StarProbePort == 0 {
		d.StarProbePort = 22222
	}
	if d.RongtaProbePort == 0 {
		d.RongtaProbePort = 1460
	}
	if d.RawPort == 0 {
		d.RawPort = 9100
	}

	s := &cfg.Session
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = 10 * time.Second
	}
	if s.CompletionTimeout == 0 {
		s.CompletionTimeout = 30 * time.Second
	}
	if s.PollInitialDelay == 0 {
		s.PollInitialDelay = 2 * time.Second
	}
	if s.PollInterval == 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	if s.DisconnectAttempts == 0 {
		s.DisconnectAttempts = 5
	}
	if s.DisconnectDelay == 0 {
		s.DisconnectDelay = 500 * time.Millisecond
	}

	if cfg.Render.Threshold == 0 {
		cfg.Render.Threshold = 128
	}
	if cfg.Rongta.PaperWidthDots == 0 {
		cfg.Rongta.PaperWidthDots = 576
	}
	if cfg.Rongta.DefaultPort == 0 {
		cfg.Rongta.DefaultPort = 9100
	}
}

func (c *Config) validate() error {
	if c.App.Port < 1 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d out of range", c.App.Port)
	}
	for name, port := range map[string]int{
		"discovery.epson_probe_port":  c.Discovery.EpsonProbePort,
		"discovery.star_probe_port":   c.Discovery.StarProbePort,
		"discovery.rongta_probe_port": c.Discovery.RongtaProbePort,
		"discovery.raw_port":          c.Discovery.RawPort,
		"rongta.default_port":         c.Rongta.DefaultPort,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}
	if c.Render.Threshold < 1 || c.Render.Threshold > 255 {
		return fmt.Errorf("render.threshold %d must be within 1..255", c.Render.Threshold)
	}
	if c.Rongta.PaperWidthDots < 8 {
		return fmt.Errorf("rongta.paper_width_dots %d too small", c.Rongta.PaperWidthDots)
	}
	if c.Session.DisconnectAttempts < 1 {
		return fmt.Errorf("session.disconnect_attempts must be positive")
	}
	for _, entry := range c.Discovery.USBAllowList {
		if _, _, err := ParseVIDPID(entry); err != nil {
			return fmt.Errorf("discovery.usb_allow_list: %w", err)
		}
	}
	return nil
}

// ParseVIDPID parses a "VID:PID" pair of hex numbers such as "0FE6:811E".
func ParseVIDPID(s string) (uint16, uint16, error) {
	vid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid VID:PID %q", s)
	}
	var v, p uint16
	if _, err := fmt.Sscanf(vid, "%x", &v); err != nil {
		return 0, 0, fmt.Errorf("invalid vendor id %q", vid)
	}
	if _, err := fmt.Sscanf(pid, "%x", &p); err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q", pid)
	}
	return v, p, nil
}
