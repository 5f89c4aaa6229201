package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/ggchat/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by InitViper.
const EnvPrefix = "GGCHAT"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the GGCHAT_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (GGCHAT_SERVER_URL, GGCHAT_EVENTS_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: GGCHAT_SERVER_URL, GGCHAT_STREAM_TURN_TIMEOUT, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves every config key through v's precedence chain.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Server: ServerConfig{
			URL: v.GetString("server.url"),
		},
		Generation: GenerationConfig{
			Temperature:   v.GetFloat64("generation.temperature"),
			MaxTokens:     v.GetInt("generation.max_tokens"),
			TopP:          v.GetFloat64("generation.top_p"),
			TopK:          v.GetInt("generation.top_k"),
			RepeatPenalty: v.GetFloat64("generation.repeat_penalty"),
			SystemPrompt:  v.GetString("generation.system_prompt"),
		},
		Stream: StreamConfig{
			TurnTimeout: v.GetString("stream.turn_timeout"),
		},
		Jobs: JobsConfig{
			ActiveInterval: v.GetString("jobs.active_interval"),
			IdleInterval:   v.GetString("jobs.idle_interval"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  brokerList(v.GetStringSlice("events.brokers")),
			Topic:    v.GetString("events.topic"),
		},
	}
}

// brokerList normalizes brokers given as a TOML array or as one
// comma-separated environment value.
func brokerList(raw []string) []string {
	var out []string
	for _, r := range raw {
		out = append(out, SplitList(r)...)
	}
	return out
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.url", d.Server.URL)

	// Generation
	v.SetDefault("generation.temperature", d.Generation.Temperature)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.top_p", d.Generation.TopP)
	v.SetDefault("generation.top_k", d.Generation.TopK)
	v.SetDefault("generation.repeat_penalty", d.Generation.RepeatPenalty)
	v.SetDefault("generation.system_prompt", d.Generation.SystemPrompt)

	// Stream
	v.SetDefault("stream.turn_timeout", d.Stream.TurnTimeout)

	// Jobs
	v.SetDefault("jobs.active_interval", d.Jobs.ActiveInterval)
	v.SetDefault("jobs.idle_interval", d.Jobs.IdleInterval)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
