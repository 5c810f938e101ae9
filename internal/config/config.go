package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Discord slash command names: 1-32 chars, lowercase
var commandNamePattern = regexp.MustCompile(`^[-_\p{Ll}\p{N}]{1,32}$`)

// maxStopSequences is the most stop sequences OpenAI-compatible endpoints accept
const maxStopSequences = 4

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.resolveEnv()

	if cfg.Render.Title == "" {
		cfg.Render.Title = cfg.Chat.Name
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// resolveEnv fills secrets that are kept out of the YAML file
func (c *Config) resolveEnv() {
	c.Discord.Token = os.Getenv("DISCORD_TOKEN")

	// An explicit api_key in the file wins over the environment
	if c.Chat.APIKey == "" && c.Chat.APIKeyEnv != "" {
		c.Chat.APIKey = os.Getenv(c.Chat.APIKeyEnv)
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	if c.RateLimits.RequestsPerMinute < 0 || c.RateLimits.RequestsPerHour < 0 {
		return fmt.Errorf("rate_limits must not be negative")
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// Validate checks the completion settings
func (c *ChatConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		if c.APIKeyEnv != "" {
			return fmt.Errorf("api_key is required (set it in the file or via %s)", c.APIKeyEnv)
		}
		return fmt.Errorf("api_key is required")
	}
	if strings.TrimSpace(c.APIAddress) == "" {
		return fmt.Errorf("api_address is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if !commandNamePattern.MatchString(c.TriggerWord) {
		return fmt.Errorf("trigger_word %q must be 1-32 lowercase letters, digits, '-' or '_'", c.TriggerWord)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1")
	}
	if c.FrequencyPenalty < -2 || c.FrequencyPenalty > 2 {
		return fmt.Errorf("frequency_penalty must be between -2 and 2")
	}
	if c.PresencePenalty < -2 || c.PresencePenalty > 2 {
		return fmt.Errorf("presence_penalty must be between -2 and 2")
	}
	if len(c.Stop) > maxStopSequences {
		return fmt.Errorf("at most %d stop sequences are allowed", maxStopSequences)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if c.ErrorMessage == "" {
		return fmt.Errorf("error_message must not be empty")
	}

	return nil
}
