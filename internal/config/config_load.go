package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults. The generation defaults
// target Groq's OpenAI-compatible endpoint.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			SessionDB:  "~/.scribe/session.db",
			DeviceName: "Scribe",
		},
		AI: AIConfig{
			APIBase:     "https://api.groq.com/openai/v1",
			Models:      []string{"meta-llama/llama-4-maverick-17b-128e-instruct"},
			Temperature: 1.5,
		},
		Settings: Settings{
			DebounceSeconds: 1,
			HistoryLimit:    25,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "scribe",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: env vars alone can configure the agent.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Validate rejects configurations the agent cannot start with.
func (c *Config) Validate() error {
	if c.Control.Token == "" {
		return fmt.Errorf("control bot token missing (set SCRIBE_TELEGRAM_TOKEN)")
	}
	if c.Control.OperatorID == 0 {
		return fmt.Errorf("control.operator_id missing")
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("generation api key missing (set SCRIBE_AI_API_KEY)")
	}
	if len(c.AI.Models) == 0 {
		return fmt.Errorf("ai.models is empty")
	}
	if len(c.Users) == 0 {
		return fmt.Errorf("no tracked users configured")
	}
	return nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("SCRIBE_TELEGRAM_TOKEN", &c.Control.Token)
	envStr("SCRIBE_AI_API_KEY", &c.AI.APIKey)
	envStr("SCRIBE_AI_API_BASE", &c.AI.APIBase)
	envStr("SCRIBE_SESSION_DB", &c.Network.SessionDB)

	if v := os.Getenv("SCRIBE_OPERATOR_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id != 0 {
			c.Control.OperatorID = id
		}
	}

	envStr("SCRIBE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("SCRIBE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	if v := os.Getenv("SCRIBE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SCRIBE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
