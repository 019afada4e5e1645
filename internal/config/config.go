// Package config holds the static configuration for the scribe agent,
// loaded once at startup.
package config

// Config is the root configuration.
type Config struct {
	Network   NetworkConfig   `json:"network"`
	Control   ControlConfig   `json:"control"`
	AI        AIConfig        `json:"ai"`
	Settings  Settings        `json:"settings"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Users     []TrackedUser   `json:"users,omitempty"`
}

// NetworkConfig configures the WhatsApp connection.
type NetworkConfig struct {
	SessionDB  string `json:"session_db"`            // sqlite file holding the whatsmeow device store
	DeviceName string `json:"device_name,omitempty"` // shown in the linked-devices list
}

// ControlConfig configures the Telegram approval bot.
// Token is NEVER read from config.json (secret) — only from env SCRIBE_TELEGRAM_TOKEN.
type ControlConfig struct {
	Token      string `json:"-"`           // from env SCRIBE_TELEGRAM_TOKEN only
	OperatorID int64  `json:"operator_id"` // Telegram user that receives drafts and presses buttons
}

// AIConfig configures the generation backend.
type AIConfig struct {
	APIKey           string   `json:"-"` // from env SCRIBE_AI_API_KEY only
	APIBase          string   `json:"api_base,omitempty"`
	Models           []string `json:"models,omitempty"` // ordered fallback list
	Temperature      float64  `json:"temperature,omitempty"`
	BaseSystemPrompt string   `json:"base_system_prompt,omitempty"`
}

// Settings are the drafting-engine knobs.
type Settings struct {
	DebounceSeconds int `json:"debounce_seconds,omitempty"` // quiet period before drafting
	HistoryLimit    int `json:"history_limit,omitempty"`    // messages of context per draft
}

// TelemetryConfig configures OpenTelemetry trace export.
// When enabled, spans are exported to an OTLP-compatible backend.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`     // skip TLS (local dev)
	ServiceName string `json:"service_name,omitempty"` // default "scribe"
}

// TrackedUser is a conversation partner whose silence triggers drafting.
// Read-only after load.
type TrackedUser struct {
	ID           int64  `json:"id"`   // bare numeric network id (WhatsApp phone number)
	Name         string `json:"name"` // display name used in draft bubbles
	SystemPrompt string `json:"system_prompt"`
}

// UsersByID indexes the tracked users by their numeric peer id.
func (c *Config) UsersByID() map[int64]TrackedUser {
	m := make(map[int64]TrackedUser, len(c.Users))
	for _, u := range c.Users {
		m[u.ID] = u
	}
	return m
}
