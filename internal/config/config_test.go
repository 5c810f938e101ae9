package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "discord-token")
	t.Setenv("TEST_CHAT_KEY", "sk-test")

	path := writeConfig(t, `
chat:
  api_key_env: TEST_CHAT_KEY
  api_address: http://localhost:8080/v1
  model: moonshot-v1-32k
  temperature: 0
  stop: ["###"]
  picture_mode: true
redis:
  address: "localhost:6379"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Discord.Token != "discord-token" {
		t.Errorf("Expected discord token from env, got %q", cfg.Discord.Token)
	}
	if cfg.Chat.APIKey != "sk-test" {
		t.Errorf("Expected api key from TEST_CHAT_KEY, got %q", cfg.Chat.APIKey)
	}
	if cfg.Chat.Model != "moonshot-v1-32k" {
		t.Errorf("Expected model moonshot-v1-32k, got %s", cfg.Chat.Model)
	}
	// An explicit zero must not be replaced by the default of 1
	if cfg.Chat.Temperature != 0 {
		t.Errorf("Expected temperature 0, got %v", cfg.Chat.Temperature)
	}
	if len(cfg.Chat.Stop) != 1 || cfg.Chat.Stop[0] != "###" {
		t.Errorf("Expected stop [###], got %v", cfg.Chat.Stop)
	}
	if !cfg.Chat.PictureMode {
		t.Error("Expected picture_mode to be true")
	}
	if cfg.Render.Title != "kimi" {
		t.Errorf("Expected render title to default to chat name, got %q", cfg.Render.Title)
	}
	if !cfg.Redis.Enabled() {
		t.Error("Expected redis to be enabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
chat:
  api_key: sk-inline
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	chat := cfg.Chat
	if chat.Temperature != 1 || chat.MaxTokens != 100 || chat.TopP != 1 {
		t.Errorf("Unexpected sampling defaults: %+v", chat)
	}
	if chat.FrequencyPenalty != 0 || chat.PresencePenalty != 0 {
		t.Errorf("Unexpected penalty defaults: %+v", chat)
	}
	if chat.Stop == nil || len(chat.Stop) != 0 {
		t.Errorf("Expected empty stop list, got %#v", chat.Stop)
	}
	if chat.TriggerWord != "chat" {
		t.Errorf("Expected trigger word chat, got %s", chat.TriggerWord)
	}
	if chat.PictureMode {
		t.Error("Expected picture mode off by default")
	}
	if chat.RequireMention || !chat.RespondToAll {
		t.Error("Expected always-on middleware by default")
	}
	if chat.APIAddress != "https://api.openai.com/v1" {
		t.Errorf("Unexpected default api address %s", chat.APIAddress)
	}
	if chat.ErrorMessage == "" {
		t.Error("Expected a default error message")
	}
	if cfg.Redis.Enabled() {
		t.Error("Expected redis disabled without an address")
	}
}

func TestLoadMissingCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	path := writeConfig(t, `
chat:
  api_address: http://localhost:8080/v1
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("Expected api_key in error, got %v", err)
	}
}

func TestLoadMissingEndpoint(t *testing.T) {
	path := writeConfig(t, `
chat:
  api_key: sk-test
  api_address: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for missing api address")
	}
	if !strings.Contains(err.Error(), "api_address") {
		t.Errorf("Expected api_address in error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Chat.APIKey = "sk-test"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Chat.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "blank api address",
			mutate:  func(c *Config) { c.Chat.APIAddress = "  " },
			wantErr: true,
		},
		{
			name:    "uppercase trigger word",
			mutate:  func(c *Config) { c.Chat.TriggerWord = "Chat" },
			wantErr: true,
		},
		{
			name:    "trigger word with space",
			mutate:  func(c *Config) { c.Chat.TriggerWord = "ask me" },
			wantErr: true,
		},
		{
			name:    "zero max tokens",
			mutate:  func(c *Config) { c.Chat.MaxTokens = 0 },
			wantErr: true,
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Chat.Temperature = 2.5 },
			wantErr: true,
		},
		{
			name:    "top_p out of range",
			mutate:  func(c *Config) { c.Chat.TopP = 1.5 },
			wantErr: true,
		},
		{
			name:    "negative penalty in range",
			mutate:  func(c *Config) { c.Chat.PresencePenalty = -1.5 },
			wantErr: false,
		},
		{
			name:    "too many stop sequences",
			mutate:  func(c *Config) { c.Chat.Stop = []string{"a", "b", "c", "d", "e"} },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimits.RequestsPerMinute = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeouts(t *testing.T) {
	chat := ChatConfig{}
	if chat.Timeout().Seconds() != 60 {
		t.Errorf("Expected 60s fallback, got %v", chat.Timeout())
	}
	chat.TimeoutSeconds = 5
	if chat.Timeout().Seconds() != 5 {
		t.Errorf("Expected 5s, got %v", chat.Timeout())
	}

	render := RenderConfig{}
	if render.Timeout().Seconds() != 30 {
		t.Errorf("Expected 30s fallback, got %v", render.Timeout())
	}
}
