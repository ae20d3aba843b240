package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeWorkspaceCreatesDir(t *testing.T) {
	d := filepath.Join(t.TempDir(), "state")
	if err := InitializeWorkspace(d); err != nil {
		t.Fatalf("InitializeWorkspace failed: %v", err)
	}
	if info, err := os.Stat(d); err != nil || !info.IsDir() {
		t.Fatalf("expected %s to exist as a directory", d)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	d := t.TempDir()
	cfg := DefaultConfig()
	cfg.Inbound.AllowFrom = []string{"+1"}
	path := filepath.Join(d, "config.json")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	parsed, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(parsed.Inbound.AllowFrom) != 1 || parsed.Inbound.AllowFrom[0] != "+1" {
		t.Fatalf("AllowFrom mismatch: got %v", parsed.Inbound.AllowFrom)
	}
	if parsed.Inbound.Reply.Mode != "text" || parsed.Inbound.Reply.Text != "pong" {
		t.Fatalf("reply defaults mismatch: %+v", parsed.Inbound.Reply)
	}
}

func TestLoadConfig_RejectsUnknownFields(t *testing.T) {
	d := t.TempDir()
	path := filepath.Join(d, "config.json")
	bad := []byte(`{"inbound": {"reply": {"mode": "text", "text": "pong"}}, "bogusTopLevelKey": true}`)
	if err := os.WriteFile(path, bad, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected LoadConfig to reject an unknown top-level key")
	}
}

func TestLoadConfig_RejectsInvalidMode(t *testing.T) {
	d := t.TempDir()
	path := filepath.Join(d, "config.json")
	bad := []byte(`{"inbound": {"reply": {"mode": "carrier-pigeon"}}}`)
	if err := os.WriteFile(path, bad, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected LoadConfig to reject an invalid reply mode")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDefaultConfig_WhatsAppDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Channels.WhatsApp.Enabled {
		t.Error("WhatsApp should be disabled in the default config")
	}
}

func TestDefaultConfig_WhatsAppRoundTrips(t *testing.T) {
	d := t.TempDir()
	cfg := DefaultConfig()
	cfg.Channels.WhatsApp = WhatsAppConfig{
		Enabled:   true,
		DBPath:    "~/.wa-relay/whatsapp.db",
		AllowFrom: []string{"15551234567"},
	}

	path := filepath.Join(d, "config.json")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved config failed: %v", err)
	}
	var parsed Config
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}

	wa := parsed.Channels.WhatsApp
	if !wa.Enabled {
		t.Error("WhatsApp should be enabled after round-trip")
	}
	if wa.DBPath != "~/.wa-relay/whatsapp.db" {
		t.Errorf("DBPath = %q, want ~/.wa-relay/whatsapp.db", wa.DBPath)
	}
	if len(wa.AllowFrom) != 1 || wa.AllowFrom[0] != "15551234567" {
		t.Errorf("AllowFrom = %v, want [15551234567]", wa.AllowFrom)
	}
}

func TestToEngineConfig_CarriesReplyFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Inbound.Reply.ThinkingDefault = "medium"
	cfg.Inbound.Reply.Agent.Kind = "claude"

	ec := cfg.ToEngineConfig()
	if string(ec.Reply.ThinkingDefault) != "medium" {
		t.Errorf("ThinkingDefault = %q, want medium", ec.Reply.ThinkingDefault)
	}
	if string(ec.Reply.Agent.Kind) != "claude" {
		t.Errorf("Agent.Kind = %q, want claude", ec.Reply.Agent.Kind)
	}
}
