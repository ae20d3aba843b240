// Package reply implements the auto-reply engine: the component that sits
// between an inbound message and the outbound payloads dispatched back to
// whatever channel received it.
package reply

import "time"

// Message is an inbound message handed to the engine by a front door
// (WhatsApp Web, a telephony webhook, …). Immutable once received.
type Message struct {
	From       string
	To         string
	Body       string
	MessageID  string
	MediaPaths []string
	ReceivedAt time.Time
}

// ThinkLevel is one of off|minimal|low|medium|high.
type ThinkLevel string

const (
	ThinkOff     ThinkLevel = "off"
	ThinkMinimal ThinkLevel = "minimal"
	ThinkLow     ThinkLevel = "low"
	ThinkMedium  ThinkLevel = "medium"
	ThinkHigh    ThinkLevel = "high"
)

// VerboseLevel is one of off|on.
type VerboseLevel string

const (
	VerboseOff VerboseLevel = "off"
	VerboseOn  VerboseLevel = "on"
)

// Session is the durable per-key conversation record. Exactly one exists
// per key at any time; updatedAt never precedes createdAt.
type Session struct {
	ID             string       `json:"id"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	SystemSent     bool         `json:"systemSent"`
	ThinkDefault   ThinkLevel   `json:"thinkDefault"`
	VerboseDefault VerboseLevel `json:"verboseDefault"`
	AbortPending   bool         `json:"abortPending"`
}

// Expired reports whether the session is stale relative to idleMinutes.
func (s Session) Expired(now time.Time, idleMinutes int) bool {
	if idleMinutes <= 0 {
		return false
	}
	return now.Sub(s.UpdatedAt) > time.Duration(idleMinutes)*time.Minute
}

// Directives is the parsed result of scanning an inbound body for inline
// tokens (think/verbose levels, reset triggers, abort words).
type Directives struct {
	Think          ThinkLevel
	Verbose        VerboseLevel
	ResetRequested bool
	AbortRequested bool
	DirectiveOnly  bool
	StrippedBody   string
}

// AgentKind identifies one of the five supported external agent CLIs.
type AgentKind string

const (
	KindClaude   AgentKind = "claude"
	KindOpenCode AgentKind = "opencode"
	KindPi       AgentKind = "pi"
	KindCodex    AgentKind = "codex"
	KindGemini   AgentKind = "gemini"
)

// BuildArgsContext carries everything an AgentSpec.BuildArgs needs to
// shape an argv for a single invocation.
type BuildArgsContext struct {
	SessionID             string
	IsNewSession          bool
	Format                string
	SendSystemOnce        bool
	SystemSent            bool
	IdentityPrefix        string
	SessionArgBeforeBody  bool
	ThinkLevel            ThinkLevel
	Body                  string
}

// AgentSpec is a stateless, pure-function value record per agent kind.
type AgentSpec struct {
	Kind        AgentKind
	Matches     func(argv []string) bool
	BuildArgs   func(ctx BuildArgsContext, argv []string) []string
	ParseOutput func(raw string) AgentParseResult
}

// AgentMeta is optional metadata surfaced by an agent's output parser.
type AgentMeta struct {
	Model      string
	Provider   string
	StopReason string
	Usage      map[string]any
	Extra      map[string]any
}

// AgentParseResult is the structured result of parsing raw agent stdout.
type AgentParseResult struct {
	Texts       []string
	ToolResults []string
	Meta        *AgentMeta
}

// ReplyPayload is one outbound unit; payloads are emitted in order.
type ReplyPayload struct {
	Text      string
	MediaURL  string
	MediaURLs []string
}

// CommandReplyMeta carries diagnostic metadata about a single reply() call.
type CommandReplyMeta struct {
	DurationMs  int64
	QueuedMs    *int64
	QueuedAhead *int
	ExitCode    *int
	Signal      string
	Killed      bool
	AgentMeta   *AgentMeta
}

// ErrorKind names a point in the error taxonomy (§7); it is a classifier,
// not a distinct error type hierarchy.
type ErrorKind string

const (
	AdmissionRefused       ErrorKind = "AdmissionRefused"
	ConfigInvalid          ErrorKind = "ConfigInvalid"
	CommandTimeout         ErrorKind = "CommandTimeout"
	CommandNonZeroExit     ErrorKind = "CommandNonZeroExit"
	CommandKilled          ErrorKind = "CommandKilled"
	AgentParseFailure      ErrorKind = "AgentParseFailure"
	TranscriptionFailure   ErrorKind = "TranscriptionFailure"
	SessionStoreWriteFailure ErrorKind = "SessionStoreWriteFailure"
	ProviderTransportError ErrorKind = "ProviderTransportError"
)

// Error wraps an underlying error with its taxonomy kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
