package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --server
// on "ggchat chat", "ggchat chats" and "ggchat jobs").
type Flag struct {
	// Name is the long flag name (e.g. "server").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag, AddFloatFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagServer         = "server"
	FlagTemperature    = "temperature"
	FlagMaxTokens      = "max-tokens"
	FlagTopP           = "top-p"
	FlagTopK           = "top-k"
	FlagRepeatPenalty  = "repeat-penalty"
	FlagSystemPrompt   = "system-prompt"
	FlagTurnTimeout    = "turn-timeout"
	FlagEventsProvider = "events-provider"
	FlagEventsBrokers  = "events-brokers"
	FlagEventsTopic    = "events-topic"
)

// Flags is the registry shared by every ggchat command.
var Flags = FlagSet{
	FlagServer: {
		Name:        "server",
		Shorthand:   "s",
		ViperKey:    "server.url",
		Description: "Chat service base URL",
	},
	FlagTemperature: {
		Name:        "temperature",
		ViperKey:    "generation.temperature",
		Description: "Sampling temperature",
	},
	FlagMaxTokens: {
		Name:        "max-tokens",
		ViperKey:    "generation.max_tokens",
		Description: "Maximum tokens generated per turn",
	},
	FlagTopP: {
		Name:        "top-p",
		ViperKey:    "generation.top_p",
		Description: "Nucleus sampling probability mass",
	},
	FlagTopK: {
		Name:        "top-k",
		ViperKey:    "generation.top_k",
		Description: "Top-k sampling cutoff",
	},
	FlagRepeatPenalty: {
		Name:        "repeat-penalty",
		ViperKey:    "generation.repeat_penalty",
		Description: "Penalty applied to repeated tokens",
	},
	FlagSystemPrompt: {
		Name:        "system-prompt",
		ViperKey:    "generation.system_prompt",
		Description: "System prompt override (blank keeps the chat's own)",
	},
	FlagTurnTimeout: {
		Name:        "turn-timeout",
		ViperKey:    "stream.turn_timeout",
		Description: "Upper bound on a single streamed turn, e.g. 5m",
	},
	FlagEventsProvider: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Event publisher: nop or kafka",
	},
	FlagEventsBrokers: {
		Name:        "events-brokers",
		ViperKey:    "events.brokers",
		Description: "Comma-separated Kafka brokers",
	},
	FlagEventsTopic: {
		Name:        "events-topic",
		ViperKey:    "events.topic",
		Description: "Kafka topic receiving events",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper holding only NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
