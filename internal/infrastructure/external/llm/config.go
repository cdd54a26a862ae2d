package llm

import "time"

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "mixtral-8x7b-32768"
)

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Timeout bounds one completion call.
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32

	// RequestsPerMinute feeds the local limiter. Zero disables it.
	RequestsPerMinute int
	Burst             int
}

// DefaultConfig returns Groq settings for the given key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:            apiKey,
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		Timeout:           15 * time.Second,
		MaxTokens:         400,
		Temperature:       0.7,
		RequestsPerMinute: 30,
		Burst:             5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.APIKey)
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	return c
}
