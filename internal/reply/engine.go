package reply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AgentConfig selects and shapes one external agent CLI.
type AgentConfig struct {
	Kind           AgentKind
	Format         string
	IdentityPrefix string
}

// SessionConfig configures the session store's behaviour for this engine.
type SessionConfig struct {
	Scope                string // "per-sender" or "global"
	ResetTriggers        []string
	IdleMinutes          int
	HeartbeatIdleMinutes int
	SessionArgBeforeBody bool
	SendSystemOnce       bool
	SessionIntro         string
}

// TranscribeAudioConfig enables step 2 (audio transcription before reply).
type TranscribeAudioConfig struct {
	Command        []string
	TimeoutSeconds int
}

// ReplyConfig is `inbound.reply.*` from §6.
type ReplyConfig struct {
	Mode                  string // "text" or "command"
	Text                  string
	Command               []string
	HeartbeatCommand      []string
	ThinkingDefault       ThinkLevel
	VerboseDefault        VerboseLevel
	Cwd                   string
	TimeoutSeconds        int
	Template              string
	BodyPrefix            string
	MediaURL              string
	MediaMaxMB            float64
	TypingIntervalSeconds int
	HeartbeatMinutes      int
	Agent                 AgentConfig
	Session               SessionConfig
}

// EngineConfig is the full `inbound.*` configuration tree consumed by the
// reply engine.
type EngineConfig struct {
	AllowFrom       []string
	MessagePrefix   string
	ResponsePrefix  string
	TimestampPrefix string // "" = off, "utc", or an IANA zone name
	TranscribeAudio *TranscribeAudioConfig
	Reply           ReplyConfig
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".m4a": true,
}

func hasAudio(paths []string) (string, bool) {
	for _, p := range paths {
		if audioExtensions[extensionOf(p)] {
			return p, true
		}
	}
	return "", false
}

// Engine is the top-level orchestrator: one Reply() call consumes an
// inbound Message and produces the payloads to dispatch plus diagnostics.
type Engine struct {
	cfg      EngineConfig
	store    *Store
	queue    *Queue
	registry *Registry
	log      zerolog.Logger
	now      func() time.Time
}

func NewEngine(cfg EngineConfig, store *Store, queue *Queue, registry *Registry, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, store: store, queue: queue, registry: registry, log: logger, now: time.Now}
}

func (e *Engine) admitted(from string) bool {
	for _, a := range e.cfg.AllowFrom {
		if a == "*" || a == from {
			return true
		}
	}
	return false
}

// Reply runs the full algorithm of §4.H for a single inbound message. It
// returns an empty payload slice (never a nil-error/non-nil-payload
// mismatch) for admission refusal; every other
// failure path is turned into a user-visible payload rather than a
// returned error.
func (e *Engine) Reply(ctx context.Context, msg Message) ([]ReplyPayload, CommandReplyMeta, error) {
	if !e.admitted(msg.From) {
		e.log.Debug().Str("from", msg.From).Msg("admission refused")
		return nil, CommandReplyMeta{}, nil
	}

	body := msg.Body
	mediaPath := ""
	if len(msg.MediaPaths) > 0 {
		mediaPath = msg.MediaPaths[0]
	}
	if path, ok := hasAudio(msg.MediaPaths); ok && e.cfg.TranscribeAudio != nil {
		if transcript, err := e.transcribe(ctx, path); err != nil {
			e.log.Error().Err(err).Str("path", path).Msg("transcription failed, keeping original body")
		} else {
			body = transcript
			mediaPath = path
		}
	}
	if e.cfg.MessagePrefix != "" {
		body = e.cfg.MessagePrefix + body
	}

	d := ParseDirectives(body, e.cfg.Reply.Session.ResetTriggers)
	key := SessionKey(e.cfg.Reply.Session.Scope, msg.From)

	if d.AbortRequested {
		if err := e.store.SetAbortPending(key, true); err != nil {
			e.log.Error().Err(err).Msg("failed to persist abort-pending flag")
		}
		return []ReplyPayload{{Text: "Agent was aborted."}}, CommandReplyMeta{}, nil
	}

	if d.DirectiveOnly {
		return e.applyDirectiveOnly(key, d), CommandReplyMeta{}, nil
	}

	idleMinutes := e.cfg.Reply.Session.IdleMinutes
	sess, isNew, isFirstTurn, err := e.store.Get(key, d.ResetRequested, idleMinutes)
	if err != nil {
		e.log.Error().Err(err).Msg("session store write failed, continuing with in-memory session")
	}

	workingBody := d.StrippedBody
	if sess.AbortPending {
		workingBody = "(reminder: the previous turn was aborted by the user) " + workingBody
		if err := e.store.SetAbortPending(key, false); err != nil {
			e.log.Error().Err(err).Msg("failed to clear abort-pending flag")
		}
	}
	if isNew && e.cfg.Reply.Session.SessionIntro != "" {
		workingBody = e.cfg.Reply.Session.SessionIntro + " " + workingBody
	}
	if e.cfg.Reply.BodyPrefix != "" {
		workingBody = e.cfg.Reply.BodyPrefix + workingBody
	}

	thinkLevel := resolveThink(d.Think, sess.ThinkDefault, e.cfg.Reply.ThinkingDefault)
	verboseLevel := resolveVerbose(d.Verbose, sess.VerboseDefault, e.cfg.Reply.VerboseDefault)
	workingBody = appendThinkCue(workingBody, thinkLevel, e.cfg.Reply.Agent.Kind)

	tctx := TemplateContext{
		Body:         workingBody,
		BodyStripped: d.StrippedBody,
		From:         msg.From,
		To:           msg.To,
		MessageSid:   msg.MessageID,
		SessionID:    sess.ID,
		IsNewSession: isNew,
		MediaPath:    mediaPath,
	}

	var payloads []ReplyPayload
	var meta CommandReplyMeta

	if e.cfg.Reply.Mode == "text" {
		text := ApplyTemplate(e.cfg.Reply.Text, tctx)
		payloads = e.chunkedTextPayloads(text)
	} else {
		payloads, meta = e.runCommand(ctx, tctx, sess, isNew, verboseLevel, thinkLevel)
	}

	if len(payloads) > 0 && isFirstTurn {
		if err := e.store.SetSystemSent(key, true); err != nil {
			e.log.Error().Err(err).Msg("failed to mark systemSent")
		}
	}
	if err := e.store.Touch(key); err != nil {
		e.log.Error().Err(err).Msg("failed to touch session")
	}

	return payloads, meta, nil
}

func (e *Engine) applyDirectiveOnly(key string, d Directives) []ReplyPayload {
	var acks []string
	if d.Think != "" {
		if err := e.store.SetThinkDefault(key, d.Think); err != nil {
			e.log.Error().Err(err).Msg("failed to persist think default")
		}
		if d.Think == ThinkOff {
			acks = append(acks, "Thinking disabled.")
		} else {
			acks = append(acks, fmt.Sprintf("Thinking level set to %s.", d.Think))
		}
	}
	if d.Verbose != "" {
		if err := e.store.SetVerboseDefault(key, d.Verbose); err != nil {
			e.log.Error().Err(err).Msg("failed to persist verbose default")
		}
		if d.Verbose == VerboseOn {
			acks = append(acks, "Verbose logging enabled.")
		} else {
			acks = append(acks, "Verbose logging disabled.")
		}
	}
	if len(acks) == 0 {
		return []ReplyPayload{{Text: "Unrecognised directive."}}
	}
	payloads := make([]ReplyPayload, len(acks))
	for i, a := range acks {
		payloads[i] = ReplyPayload{Text: a}
	}
	return payloads
}

func resolveThink(inline, session, config ThinkLevel) ThinkLevel {
	if inline != "" {
		return inline
	}
	if session != "" {
		return session
	}
	if config != "" {
		return config
	}
	return ThinkOff
}

func resolveVerbose(inline, session, config VerboseLevel) VerboseLevel {
	if inline != "" {
		return inline
	}
	if session != "" {
		return session
	}
	if config != "" {
		return config
	}
	return VerboseOff
}

var thinkCues = map[ThinkLevel]string{
	ThinkMinimal: "think",
	ThinkLow:     "think hard",
	ThinkMedium:  "think harder",
	ThinkHigh:    "ultrathink",
}

// appendThinkCue appends the agent-appropriate think cue when level is not
// off. pi takes the level as an argv flag elsewhere (BuildArgsContext), so
// only the trailing cue word is added here for the other kinds.
func appendThinkCue(body string, level ThinkLevel, kind AgentKind) string {
	if level == "" || level == ThinkOff {
		return body
	}
	if kind == KindPi {
		return body
	}
	cue, ok := thinkCues[level]
	if !ok {
		return body
	}
	return body + " " + cue
}

func (e *Engine) chunkedTextPayloads(text string) []ReplyPayload {
	if e.cfg.ResponsePrefix != "" {
		text = e.cfg.ResponsePrefix + text
	}
	text = e.withTimestamp(text)
	chunks := Chunk(text, 4000)
	payloads := make([]ReplyPayload, 0, len(chunks))
	for _, c := range chunks {
		payloads = append(payloads, ReplyPayload{Text: c})
	}
	return payloads
}

func (e *Engine) withTimestamp(text string) string {
	if e.cfg.TimestampPrefix == "" {
		return text
	}
	loc := time.UTC
	if e.cfg.TimestampPrefix != "utc" && e.cfg.TimestampPrefix != "true" {
		if l, err := time.LoadLocation(e.cfg.TimestampPrefix); err == nil {
			loc = l
		}
	}
	return "[" + e.now().In(loc).Format(time.RFC3339) + "] " + text
}

const (
	timeoutPartialLimit = 800
	exitPartialLimit    = 500
)

func (e *Engine) transcribe(ctx context.Context, mediaPath string) (string, error) {
	argv := make([]string, len(e.cfg.TranscribeAudio.Command))
	for i, a := range e.cfg.TranscribeAudio.Command {
		argv[i] = ApplyTemplate(a, TemplateContext{MediaPath: mediaPath})
	}
	timeout := time.Duration(e.cfg.TranscribeAudio.TimeoutSeconds) * time.Second
	res, err := Run(ctx, argv, "", timeout)
	if err != nil {
		return "", &Error{Kind: TranscriptionFailure, Err: err}
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (e *Engine) runCommand(ctx context.Context, tctx TemplateContext, sess Session, isNewSession bool, verboseLevel VerboseLevel, thinkLevel ThinkLevel) ([]ReplyPayload, CommandReplyMeta) {
	return e.runCommandWithArgvTemplate(ctx, e.cfg.Reply.Command, tctx, sess, isNewSession, verboseLevel, thinkLevel)
}

// templatePrefixAllowed reports whether the configured reply.template
// (and pi's identity prefix) may still be injected for this turn: both
// are suppressed once sendSystemOnce has already delivered them, mirroring
// the claude row's system-prompt-prefix behaviour in §4.D.
func templatePrefixAllowed(sendSystemOnce, systemSent bool) bool {
	return !(sendSystemOnce && systemSent)
}

func (e *Engine) runCommandWithArgvTemplate(ctx context.Context, argvTemplate []string, tctx TemplateContext, sess Session, isNewSession bool, verboseLevel VerboseLevel, thinkLevel ThinkLevel) ([]ReplyPayload, CommandReplyMeta) {
	if len(argvTemplate) == 0 {
		return []ReplyPayload{{Text: "(no command configured)"}}, CommandReplyMeta{}
	}
	argv := make([]string, len(argvTemplate))
	for i, a := range argvTemplate {
		argv[i] = ApplyTemplate(a, tctx)
	}

	if e.cfg.Reply.Template != "" && templatePrefixAllowed(e.cfg.Reply.Session.SendSystemOnce, sess.SystemSent) {
		prefix := ApplyTemplate(e.cfg.Reply.Template, tctx)
		withPrefix := make([]string, 0, len(argv)+1)
		withPrefix = append(withPrefix, argv[0], prefix)
		withPrefix = append(withPrefix, argv[1:]...)
		argv = withPrefix
	}

	spec := e.registry.Spec(e.cfg.Reply.Agent.Kind, e.cfg.Reply.Agent.Format)
	buildCtx := BuildArgsContext{
		SessionID:            tctx.SessionID,
		IsNewSession:         isNewSession,
		Format:               e.cfg.Reply.Agent.Format,
		SendSystemOnce:       e.cfg.Reply.Session.SendSystemOnce,
		SystemSent:           sess.SystemSent,
		IdentityPrefix:       e.cfg.Reply.Agent.IdentityPrefix,
		SessionArgBeforeBody: e.cfg.Reply.Session.SessionArgBeforeBody,
		ThinkLevel:           thinkLevel,
		Body:                 tctx.Body,
	}
	argv = spec.BuildArgs(buildCtx, argv)

	cwd := e.cfg.Reply.Cwd
	timeout := time.Duration(e.cfg.Reply.TimeoutSeconds) * time.Second

	start := e.now()
	var queuedMs *int64
	var queuedAhead *int
	raw, err := e.queue.Enqueue(ctx, func(waitMs int64, ahead int) {
		queuedMs = &waitMs
		queuedAhead = &ahead
	}, func(ctx context.Context) (any, error) {
		return Run(ctx, argv, cwd, timeout)
	})
	duration := e.now().Sub(start).Milliseconds()
	meta := CommandReplyMeta{DurationMs: duration, QueuedMs: queuedMs, QueuedAhead: queuedAhead}

	var res RunResult
	if raw != nil {
		res, _ = raw.(RunResult)
	}
	meta.ExitCode = &res.ExitCode
	meta.Signal = res.Signal
	meta.Killed = res.Killed

	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			switch re.Kind {
			case CommandTimeout:
				partial := truncate(res.Stdout, timeoutPartialLimit)
				return []ReplyPayload{{Text: fmt.Sprintf("Agent timed out after %ds. Partial output: %s", e.cfg.Reply.TimeoutSeconds, partial)}}, meta
			case CommandKilled:
				partial := truncate(res.Stdout, exitPartialLimit)
				return []ReplyPayload{{Text: fmt.Sprintf("Agent was killed (signal %s). Partial output: %s", res.Signal, partial)}}, meta
			case CommandNonZeroExit:
				partial := truncate(res.Stdout, exitPartialLimit)
				return []ReplyPayload{{Text: fmt.Sprintf("Agent exited with code %d. Partial output: %s", res.ExitCode, partial)}}, meta
			}
		}
		e.log.Error().Err(err).Msg("agent invocation failed")
		return []ReplyPayload{{Text: "Agent invocation failed."}}, meta
	}

	parsed := spec.ParseOutput(res.Stdout)
	meta.AgentMeta = parsed.Meta
	return e.buildOutputPayloads(parsed, res.Stdout, verboseLevel), meta
}

func (e *Engine) buildOutputPayloads(parsed AgentParseResult, rawStdout string, verboseLevel VerboseLevel) []ReplyPayload {
	var payloads []ReplyPayload
	for _, text := range parsed.Texts {
		prose, urls := Split(text)
		urls = e.filterMedia(urls)
		if prose != "" || len(urls) > 0 {
			payloads = append(payloads, e.textPayloadWithMedia(prose, urls)...)
		}
	}
	if verboseLevel == VerboseOn {
		for _, tr := range parsed.ToolResults {
			payloads = append(payloads, ReplyPayload{Text: "[tool] " + tr})
		}
	}
	if len(payloads) == 0 {
		if fallback := strings.TrimSpace(rawStdout); fallback != "" {
			return e.chunkedTextPayloads(fallback)
		}
		return []ReplyPayload{{Text: "(command produced no output)"}}
	}
	return payloads
}

func (e *Engine) textPayloadWithMedia(prose string, urls []string) []ReplyPayload {
	chunks := e.chunkedTextPayloads(prose)
	if len(urls) == 0 {
		return chunks
	}
	if len(chunks) == 0 {
		chunks = []ReplyPayload{{}}
	}
	last := len(chunks) - 1
	if len(urls) == 1 {
		chunks[last].MediaURL = urls[0]
	}
	chunks[last].MediaURLs = urls
	return chunks
}

func (e *Engine) filterMedia(urls []string) []string {
	maxMB := e.cfg.Reply.MediaMaxMB
	if maxMB <= 0 {
		return urls
	}
	var out []string
	for _, u := range urls {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			out = append(out, u)
			continue
		}
		info, err := os.Stat(u)
		if err != nil {
			continue
		}
		if float64(info.Size())/(1024*1024) <= maxMB {
			out = append(out, u)
		}
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
