package config

import (
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Discord    DiscordConfig   `yaml:"discord"`
	Chat       ChatConfig      `yaml:"chat"`
	Render     RenderConfig    `yaml:"render"`
	Redis      RedisConfig     `yaml:"redis"`
	RateLimits RateLimit       `yaml:"rate_limits"`
	Server     ServerConfig    `yaml:"server"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	Token        string   `yaml:"-"` // From environment, not YAML
	GuildID      string   `yaml:"guild_id,omitempty"`
	AllowedRoles []string `yaml:"allowed_roles,omitempty"`
}

// ChatConfig holds the completion endpoint, sampling parameters and trigger behaviour
type ChatConfig struct {
	Name             string   `yaml:"name"`
	APIKey           string   `yaml:"api_key"`
	APIKeyEnv        string   `yaml:"api_key_env"`
	APIAddress       string   `yaml:"api_address"`
	Model            string   `yaml:"model"`
	Temperature      float64  `yaml:"temperature"`
	MaxTokens        int      `yaml:"max_tokens"`
	TopP             float64  `yaml:"top_p"`
	FrequencyPenalty float64  `yaml:"frequency_penalty"`
	PresencePenalty  float64  `yaml:"presence_penalty"`
	Stop             []string `yaml:"stop"`
	ErrorMessage     string   `yaml:"error_message"`
	TriggerWord      string   `yaml:"trigger_word"`
	PictureMode      bool     `yaml:"picture_mode"`
	RequireMention   bool     `yaml:"require_mention"`
	RespondToAll     bool     `yaml:"respond_to_all"`
	Persona          string   `yaml:"persona"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	MaxRetries       int      `yaml:"max_retries"`
	MaxConcurrent    int      `yaml:"max_concurrent"`
}

// Timeout returns the per-message completion deadline
func (c *ChatConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RenderConfig holds picture mode rendering settings
type RenderConfig struct {
	Title          string `yaml:"title"`
	AvatarURL      string `yaml:"avatar_url"`
	BrowserBin     string `yaml:"browser_bin"`
	Headless       bool   `yaml:"headless"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the render deadline as a Duration
func (r *RenderConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// RedisConfig holds Redis connection settings. An empty address disables rate limiting.
type RedisConfig struct {
	Address     string `yaml:"address"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// Enabled reports whether a Redis server is configured
func (r *RedisConfig) Enabled() bool {
	return r.Address != ""
}

// RateLimit defines rate limiting parameters
type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
}

// ServerConfig holds the ops HTTP server settings
type ServerConfig struct {
	Address string `yaml:"address"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
