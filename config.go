package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/tomaslejdung/sharehost/pkg/capture"
	"github.com/tomaslejdung/sharehost/pkg/peer"
)

// DefaultSignalServer is the public signaling server used in remote mode.
const DefaultSignalServer = "wss://sharehost.tineestudio.se"

const (
	SignalModeLocal  = "local"
	SignalModeRemote = "remote"
)

// Config holds runtime configuration.
type Config struct {
	Signal   SignalConfig            `mapstructure:"signal"`
	Control  ControlConfig           `mapstructure:"control"`
	ICE      ICEConfig               `mapstructure:"ice"`
	Log      LogConfig               `mapstructure:"log"`
	Sources  []capture.SourceConfig  `mapstructure:"sources"`
	Displays []capture.DisplayConfig `mapstructure:"displays"`
}

type SignalConfig struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`
	URL  string `mapstructure:"url"`
}

type ControlConfig struct {
	Addr string `mapstructure:"addr"`
}

type ICEConfig struct {
	TURNServer string `mapstructure:"turn_server"`
	TURNUser   string `mapstructure:"turn_user"`
	TURNPass   string `mapstructure:"turn_pass"`
	ForceRelay bool   `mapstructure:"force_relay"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Peer converts the ICE section for the peer manager.
func (c ICEConfig) Peer() peer.ICEConfig {
	return peer.ICEConfig{
		TURNServer: c.TURNServer,
		TURNUser:   c.TURNUser,
		TURNPass:   c.TURNPass,
		ForceRelay: c.ForceRelay,
	}
}

// Local reports whether rooms are hosted by the embedded signal server.
func (c SignalConfig) Local() bool {
	return c.Mode != SignalModeRemote
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SHAREHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("signal.mode", SignalModeLocal)
	v.SetDefault("signal.port", 8080)
	v.SetDefault("signal.url", DefaultSignalServer)
	v.SetDefault("control.addr", "127.0.0.1:8090")
	v.SetDefault("ice.turn_server", "")
	v.SetDefault("ice.turn_user", "")
	v.SetDefault("ice.turn_pass", "")
	v.SetDefault("ice.force_relay", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "sharehost-debug.log")
	return v
}

// defaultConfigPath returns $XDG_CONFIG_HOME/sharehost/config.yaml, or the
// user config dir equivalent.
func defaultConfigPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sharehost", "config.yaml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sharehost", "config.yaml"), nil
}

// LoadConfig reads configuration from v, falling back to defaults when no
// file exists. An explicit path that cannot be read is an error.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := defaultConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case explicit:
				return nil, fmt.Errorf("read config %s: %w", path, err)
			case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
				log.Debug().Str("module", "config").Str("path", path).Msg("config file not found, using defaults")
			default:
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.Signal.Mode {
	case SignalModeLocal, SignalModeRemote:
	default:
		return nil, fmt.Errorf("signal.mode must be %q or %q, got %q", SignalModeLocal, SignalModeRemote, cfg.Signal.Mode)
	}
	if cfg.Signal.Port <= 0 || cfg.Signal.Port > 65535 {
		return nil, fmt.Errorf("signal.port out of range: %d", cfg.Signal.Port)
	}
	return &cfg, nil
}
