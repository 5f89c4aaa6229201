package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// Configer reads and writes config.toml in the resolved .ggchat/ directory.
type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewConfiger resolves the config file location, creating the .ggchat/
// directory when none exists yet so that SaveConfig always has a target.
func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Ensure(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in the
// order of the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"server.url",
		"generation.temperature",
		"generation.max_tokens",
		"generation.top_p",
		"generation.top_k",
		"generation.repeat_penalty",
		"generation.system_prompt",
		"stream.turn_timeout",
		"jobs.active_interval",
		"jobs.idle_interval",
		"events.provider",
		"events.brokers",
		"events.topic",
	}

	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .ggchat/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config. Keys present in the file override
// the defaults; keys absent from it keep them.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := decodeConfigTOML(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills fields whose empty value is never meaningful.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Server.URL == "" {
		cfg.Server.URL = defaults.Server.URL
	}

	if cfg.Stream.TurnTimeout == "" {
		cfg.Stream.TurnTimeout = defaults.Stream.TurnTimeout
	}

	if cfg.Jobs.ActiveInterval == "" {
		cfg.Jobs.ActiveInterval = defaults.Jobs.ActiveInterval
	}
	if cfg.Jobs.IdleInterval == "" {
		cfg.Jobs.IdleInterval = defaults.Jobs.IdleInterval
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .ggchat/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := decodeConfigTOML(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeConfigTOML(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return nil
}

// GenerationParams returns the configured sampling parameters.
func (c *Config) GenerationParams() chat.GenerationParams {
	return chat.GenerationParams{
		Temperature:   c.Generation.Temperature,
		TopP:          c.Generation.TopP,
		TopK:          c.Generation.TopK,
		RepeatPenalty: c.Generation.RepeatPenalty,
		MaxTokens:     c.Generation.MaxTokens,
		SystemPrompt:  c.Generation.SystemPrompt,
	}
}

// Durations parses the stream and polling durations.
func (c *Config) Durations() (turnTimeout, activeInterval, idleInterval time.Duration, err error) {
	if turnTimeout, err = time.ParseDuration(c.Stream.TurnTimeout); err != nil {
		return 0, 0, 0, fmt.Errorf("stream.turn_timeout: %w", err)
	}
	if activeInterval, err = time.ParseDuration(c.Jobs.ActiveInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("jobs.active_interval: %w", err)
	}
	if idleInterval, err = time.ParseDuration(c.Jobs.IdleInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("jobs.idle_interval: %w", err)
	}
	return turnTimeout, activeInterval, idleInterval, nil
}
