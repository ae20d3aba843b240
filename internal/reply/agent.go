package reply

import (
	"bufio"
	"encoding/json"
	"path/filepath"
	"strings"
)

// streamLine is one NDJSON event emitted by an agent CLI in --format=json
// mode. It accepts either a flat {role,text} shape or a nested
// {message:{role,content[]}} shape, the latter grounded on the
// claude --output-format stream-json envelope.
type streamLine struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
	Message *struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message,omitempty"`
}

func parseStreamJSON(raw string) AgentParseResult {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var texts, toolResults []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev streamLine
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue // malformed lines are ignored
		}

		role := ev.Role
		text := ev.Text
		if ev.Message != nil {
			role = ev.Message.Role
			var b strings.Builder
			for _, c := range ev.Message.Content {
				if c.Type == "" || c.Type == "text" {
					b.WriteString(c.Text)
				}
			}
			text = b.String()
		}
		if text == "" {
			continue
		}

		switch {
		case strings.HasPrefix(role, "tool"):
			toolResults = append(toolResults, text)
		case role == "assistant" || role == "":
			if n := len(texts); n > 0 && texts[n-1] == text {
				continue // collapse duplicate consecutive assistant texts
			}
			texts = append(texts, text)
		}
	}
	return AgentParseResult{Texts: texts, ToolResults: toolResults}
}

func parsePlainText(raw string) AgentParseResult {
	t := strings.TrimSpace(raw)
	if t == "" {
		return AgentParseResult{}
	}
	return AgentParseResult{Texts: []string{t}}
}

func matchesBase(argv []string, bases ...string) bool {
	if len(argv) == 0 {
		return false
	}
	base := filepath.Base(argv[0])
	for _, b := range bases {
		if base == b {
			return true
		}
	}
	return false
}

// insertSessionArgs places flags before the last element of argv (the body
// argument) when before is true, else appends them after it.
func insertSessionArgs(argv []string, before bool, flags []string) []string {
	if len(argv) == 0 {
		return append([]string{}, flags...)
	}
	if !before {
		out := append([]string{}, argv...)
		return append(out, flags...)
	}
	head := argv[:len(argv)-1]
	body := argv[len(argv)-1]
	out := append([]string{}, head...)
	out = append(out, flags...)
	return append(out, body)
}

func claudeBuildArgs(ctx BuildArgsContext, argv []string) []string {
	var flags []string
	if ctx.IsNewSession {
		flags = []string{"--session-id", ctx.SessionID}
	} else {
		flags = []string{"--resume", ctx.SessionID}
	}
	out := insertSessionArgs(argv, ctx.SessionArgBeforeBody, flags)
	if ctx.Format != "" {
		out = append(out, "--output-format", ctx.Format)
	}
	return out
}

func sessionFlagBuildArgs(flagName string) func(BuildArgsContext, []string) []string {
	return func(ctx BuildArgsContext, argv []string) []string {
		return insertSessionArgs(argv, ctx.SessionArgBeforeBody, []string{flagName, ctx.SessionID})
	}
}

func geminiBuildArgs(ctx BuildArgsContext, argv []string) []string {
	if ctx.IsNewSession {
		return append([]string{}, argv...)
	}
	return insertSessionArgs(argv, ctx.SessionArgBeforeBody, []string{"--resume", ctx.SessionID})
}

func piBuildArgs(ctx BuildArgsContext, argv []string) []string {
	argv = append([]string{}, argv...)
	if len(argv) > 0 && ctx.IdentityPrefix != "" && templatePrefixAllowed(ctx.SendSystemOnce, ctx.SystemSent) {
		last := len(argv) - 1
		argv[last] = ctx.IdentityPrefix + argv[last]
	}
	out := insertSessionArgs(argv, ctx.SessionArgBeforeBody, []string{"--session", ctx.SessionID})
	out = append(out, "-p")
	if ctx.Format == "json" {
		out = append(out, "--mode", "json")
	}
	if ctx.ThinkLevel != "" && ctx.ThinkLevel != ThinkOff {
		out = append(out, "--think", string(ctx.ThinkLevel))
	}
	return out
}

// Registry constructs stateless AgentSpec values per kind. It holds no
// state of its own — every method is a pure function of its arguments,
// matching §9's "tagged variant ... avoid class hierarchies" guidance.
type Registry struct{}

func NewRegistry() *Registry { return &Registry{} }

// Spec returns the AgentSpec for kind, with ParseOutput chosen by format
// ("json" selects the NDJSON stream parser, anything else plain text).
func (r *Registry) Spec(kind AgentKind, format string) AgentSpec {
	parse := parsePlainText
	if format == "json" {
		parse = parseStreamJSON
	}

	switch kind {
	case KindClaude:
		return AgentSpec{
			Kind:        kind,
			Matches:     func(argv []string) bool { return matchesBase(argv, "claude") },
			BuildArgs:   claudeBuildArgs,
			ParseOutput: parse,
		}
	case KindCodex:
		return AgentSpec{
			Kind:        kind,
			Matches:     func(argv []string) bool { return matchesBase(argv, "codex") },
			BuildArgs:   sessionFlagBuildArgs("--session"),
			ParseOutput: parse,
		}
	case KindOpenCode:
		return AgentSpec{
			Kind:        kind,
			Matches:     func(argv []string) bool { return matchesBase(argv, "opencode") },
			BuildArgs:   sessionFlagBuildArgs("--session"),
			ParseOutput: parse,
		}
	case KindGemini:
		return AgentSpec{
			Kind:        kind,
			Matches:     func(argv []string) bool { return matchesBase(argv, "gemini") },
			BuildArgs:   geminiBuildArgs,
			ParseOutput: parse,
		}
	case KindPi:
		return AgentSpec{
			Kind:        kind,
			Matches:     func(argv []string) bool { return matchesBase(argv, "pi", "tau") },
			BuildArgs:   piBuildArgs,
			ParseOutput: parse,
		}
	default:
		return AgentSpec{Kind: kind, Matches: func([]string) bool { return false }, BuildArgs: func(_ BuildArgsContext, argv []string) []string { return argv }, ParseOutput: parse}
	}
}
