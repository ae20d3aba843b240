package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfig returns a minimal default Config: a text-mode "pong" reply
// wired to nobody (an empty allowlist), ready to be edited toward a real
// command-mode agent.
func DefaultConfig() Config {
	return Config{
		Inbound: InboundConfig{
			AllowFrom:      []string{},
			ResponsePrefix: "",
			Reply: ReplyConfig{
				Mode:            "text",
				Text:            "pong",
				ThinkingDefault: "off",
				VerboseDefault:  "off",
				TimeoutSeconds:  120,
				Session: SessionSelectConfig{
					Scope:       "per-sender",
					IdleMinutes: 30,
					StorePath:   "~/.wa-relay/sessions.json",
				},
			},
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:   false,
				DBPath:    "~/.wa-relay/whatsapp.db",
				AllowFrom: []string{},
			},
		},
	}
}

// SaveConfig writes the config to the given path (creating parent dirs).
func SaveConfig(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o640)
}

// LoadConfig reads and strictly decodes the config file at path: unknown
// keys are a ConfigInvalid error rather than silently accepted, per the
// external-loader contract in the configuration table.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid: %w", err)
	}

	if cfg.Inbound.Reply.Mode != "" && cfg.Inbound.Reply.Mode != "text" && cfg.Inbound.Reply.Mode != "command" {
		return Config{}, fmt.Errorf("config invalid: inbound.reply.mode must be \"text\" or \"command\", got %q", cfg.Inbound.Reply.Mode)
	}

	return cfg, nil
}

// InitializeWorkspace creates the state directory the relay writes its
// session store and WhatsApp device database into.
func InitializeWorkspace(basePath string) error {
	return os.MkdirAll(basePath, 0o755)
}

// ResolveDefaultPaths returns absolute paths for the config and state
// directory based on the home directory.
func ResolveDefaultPaths() (cfgPath string, statePath string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", err
	}
	cfgPath = filepath.Join(home, ".wa-relay", "config.json")
	statePath = filepath.Join(home, ".wa-relay")
	return cfgPath, statePath, nil
}

// Onboard writes a default config and initializes the state directory at
// the user's home, returning the paths it used.
func Onboard() (string, string, error) {
	cfgPath, statePath, err := ResolveDefaultPaths()
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, statePath, fmt.Errorf("config already exists at %s", cfgPath)
	}
	cfg := DefaultConfig()
	if err := SaveConfig(cfg, cfgPath); err != nil {
		return "", "", fmt.Errorf("saving config: %w", err)
	}
	if err := InitializeWorkspace(statePath); err != nil {
		return "", "", fmt.Errorf("initializing state dir: %w", err)
	}
	return cfgPath, statePath, nil
}
