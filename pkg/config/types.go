package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent ggchat configuration stored as config.toml
// in the .ggchat/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version    int              `toml:"version"`
	Server     ServerConfig     `toml:"server"`
	Generation GenerationConfig `toml:"generation"`
	Stream     StreamConfig     `toml:"stream"`
	Jobs       JobsConfig       `toml:"jobs"`
	Events     EventsConfig     `toml:"events"`
}

// ServerConfig locates the chat service.
type ServerConfig struct {
	URL string `toml:"url,omitempty"`
}

// GenerationConfig holds the sampling parameters sent with every turn.
// Zero is a meaningful value for these fields, so none are omitted.
type GenerationConfig struct {
	Temperature   float64 `toml:"temperature"`
	MaxTokens     int     `toml:"max_tokens"`
	TopP          float64 `toml:"top_p"`
	TopK          int     `toml:"top_k"`
	RepeatPenalty float64 `toml:"repeat_penalty"`
	SystemPrompt  string  `toml:"system_prompt"`
}

// StreamConfig holds turn stream settings. Durations use time.ParseDuration
// syntax, e.g. "5m".
type StreamConfig struct {
	TurnTimeout string `toml:"turn_timeout,omitempty"`
}

// JobsConfig holds the download job polling cadence.
type JobsConfig struct {
	ActiveInterval string `toml:"active_interval,omitempty"`
	IdleInterval   string `toml:"idle_interval,omitempty"`
}

// EventsConfig selects where turn and job events are published.
type EventsConfig struct {
	// Provider is "nop" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// Event providers.
const (
	EventsProviderNop   = "nop"
	EventsProviderKafka = "kafka"
)

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.url": {
		get: func(c *Config) string { return c.Server.URL },
		set: func(c *Config, v string) error {
			u, err := url.Parse(v)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("invalid value for server.url: %q is not an http(s) URL", v)
			}
			c.Server.URL = v
			return nil
		},
	},
	"generation.temperature": floatKey("generation.temperature", func(c *Config) *float64 { return &c.Generation.Temperature }),
	"generation.max_tokens":  intKey("generation.max_tokens", func(c *Config) *int { return &c.Generation.MaxTokens }),
	"generation.top_p":       floatKey("generation.top_p", func(c *Config) *float64 { return &c.Generation.TopP }),
	"generation.top_k":       intKey("generation.top_k", func(c *Config) *int { return &c.Generation.TopK }),
	"generation.repeat_penalty": floatKey("generation.repeat_penalty", func(c *Config) *float64 {
		return &c.Generation.RepeatPenalty
	}),
	"generation.system_prompt": {
		get: func(c *Config) string { return c.Generation.SystemPrompt },
		set: func(c *Config, v string) error { c.Generation.SystemPrompt = v; return nil },
	},
	"stream.turn_timeout":  durationKey("stream.turn_timeout", func(c *Config) *string { return &c.Stream.TurnTimeout }),
	"jobs.active_interval": durationKey("jobs.active_interval", func(c *Config) *string { return &c.Jobs.ActiveInterval }),
	"jobs.idle_interval":   durationKey("jobs.idle_interval", func(c *Config) *string { return &c.Jobs.IdleInterval }),
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventsProviderNop, EventsProviderKafka:
				c.Events.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for events.provider: %q (available: nop, kafka)", v)
			}
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = SplitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

func floatKey(name string, field func(*Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if f < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = f
			return nil
		},
	}
}

func intKey(name string, field func(*Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func durationKey(name string, field func(*Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for %s: must be positive", name)
			}
			*field(c) = v
			return nil
		},
	}
}

// SplitList splits a comma-separated list, dropping blank entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
