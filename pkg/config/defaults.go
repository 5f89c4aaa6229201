package config

const (
	defaultServerURL = "http://localhost:8000"

	defaultTemperature   = 0.7
	defaultMaxTokens     = 512
	defaultTopP          = 0.9
	defaultTopK          = 40
	defaultRepeatPenalty = 1.1

	defaultTurnTimeout    = "5m"
	defaultActiveInterval = "1s"
	defaultIdleInterval   = "3s"

	defaultEventsProvider = EventsProviderNop
	defaultEventsTopic    = "ggchat.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			URL: defaultServerURL,
		},
		Generation: GenerationConfig{
			Temperature:   defaultTemperature,
			MaxTokens:     defaultMaxTokens,
			TopP:          defaultTopP,
			TopK:          defaultTopK,
			RepeatPenalty: defaultRepeatPenalty,
		},
		Stream: StreamConfig{
			TurnTimeout: defaultTurnTimeout,
		},
		Jobs: JobsConfig{
			ActiveInterval: defaultActiveInterval,
			IdleInterval:   defaultIdleInterval,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
