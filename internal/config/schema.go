package config

import "github.com/local/wa-relay/internal/reply"

// Config is the root of the JSON configuration file: an `inbound` block
// shaping the reply engine and a `channels` block for front-door wiring.
type Config struct {
	Inbound  InboundConfig  `json:"inbound"`
	Channels ChannelsConfig `json:"channels"`
}

// InboundConfig is `inbound.*` from the configuration table.
type InboundConfig struct {
	AllowFrom       []string               `json:"allowFrom"`
	MessagePrefix   string                 `json:"messagePrefix"`
	ResponsePrefix  string                 `json:"responsePrefix"`
	TimestampPrefix string                 `json:"timestampPrefix"`
	TranscribeAudio *TranscribeAudioConfig `json:"transcribeAudio,omitempty"`
	Reply           ReplyConfig            `json:"reply"`
}

type TranscribeAudioConfig struct {
	Command        []string `json:"command"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
}

// ReplyConfig is `inbound.reply.*`.
type ReplyConfig struct {
	Mode                  string              `json:"mode"`
	Text                  string              `json:"text,omitempty"`
	Command               []string            `json:"command,omitempty"`
	HeartbeatCommand      []string            `json:"heartbeatCommand,omitempty"`
	ThinkingDefault       string              `json:"thinkingDefault,omitempty"`
	VerboseDefault        string              `json:"verboseDefault,omitempty"`
	Cwd                   string              `json:"cwd,omitempty"`
	TimeoutSeconds        int                 `json:"timeoutSeconds,omitempty"`
	Template              string              `json:"template,omitempty"`
	BodyPrefix            string              `json:"bodyPrefix,omitempty"`
	MediaURL              string              `json:"mediaUrl,omitempty"`
	MediaMaxMB            float64             `json:"mediaMaxMb,omitempty"`
	TypingIntervalSeconds int                 `json:"typingIntervalSeconds,omitempty"`
	HeartbeatMinutes      int                 `json:"heartbeatMinutes,omitempty"`
	Agent                 AgentSelectConfig   `json:"agent,omitempty"`
	Session               SessionSelectConfig `json:"session,omitempty"`
}

type AgentSelectConfig struct {
	Kind           string `json:"kind,omitempty"`
	Format         string `json:"format,omitempty"`
	IdentityPrefix string `json:"identityPrefix,omitempty"`
}

type SessionSelectConfig struct {
	Scope                string   `json:"scope,omitempty"`
	ResetTriggers        []string `json:"resetTriggers,omitempty"`
	IdleMinutes          int      `json:"idleMinutes,omitempty"`
	HeartbeatIdleMinutes int      `json:"heartbeatIdleMinutes,omitempty"`
	StorePath            string   `json:"storePath,omitempty"`
	SessionArgBeforeBody bool     `json:"sessionArgBeforeBody,omitempty"`
	SendSystemOnce       bool     `json:"sendSystemOnce,omitempty"`
	SessionIntro         string   `json:"sessionIntro,omitempty"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled"`
	DBPath    string   `json:"dbPath"`
	AllowFrom []string `json:"allowFrom"`
}

// ToEngineConfig converts the on-disk schema into the reply package's
// runtime configuration tree.
func (c Config) ToEngineConfig() reply.EngineConfig {
	var transcribe *reply.TranscribeAudioConfig
	if c.Inbound.TranscribeAudio != nil {
		transcribe = &reply.TranscribeAudioConfig{
			Command:        c.Inbound.TranscribeAudio.Command,
			TimeoutSeconds: c.Inbound.TranscribeAudio.TimeoutSeconds,
		}
	}

	r := c.Inbound.Reply
	return reply.EngineConfig{
		AllowFrom:       c.Inbound.AllowFrom,
		MessagePrefix:   c.Inbound.MessagePrefix,
		ResponsePrefix:  c.Inbound.ResponsePrefix,
		TimestampPrefix: c.Inbound.TimestampPrefix,
		TranscribeAudio: transcribe,
		Reply: reply.ReplyConfig{
			Mode:                  r.Mode,
			Text:                  r.Text,
			Command:               r.Command,
			HeartbeatCommand:      r.HeartbeatCommand,
			ThinkingDefault:       reply.ThinkLevel(r.ThinkingDefault),
			VerboseDefault:        reply.VerboseLevel(r.VerboseDefault),
			Cwd:                   r.Cwd,
			TimeoutSeconds:        r.TimeoutSeconds,
			Template:              r.Template,
			BodyPrefix:            r.BodyPrefix,
			MediaURL:              r.MediaURL,
			MediaMaxMB:            r.MediaMaxMB,
			TypingIntervalSeconds: r.TypingIntervalSeconds,
			HeartbeatMinutes:      r.HeartbeatMinutes,
			Agent: reply.AgentConfig{
				Kind:           reply.AgentKind(r.Agent.Kind),
				Format:         r.Agent.Format,
				IdentityPrefix: r.Agent.IdentityPrefix,
			},
			Session: reply.SessionConfig{
				Scope:                r.Session.Scope,
				ResetTriggers:        r.Session.ResetTriggers,
				IdleMinutes:          r.Session.IdleMinutes,
				HeartbeatIdleMinutes: r.Session.HeartbeatIdleMinutes,
				SessionArgBeforeBody: r.Session.SessionArgBeforeBody,
				SendSystemOnce:       r.Session.SendSystemOnce,
				SessionIntro:         r.Session.SessionIntro,
			},
		},
	}
}
