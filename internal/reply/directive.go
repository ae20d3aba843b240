package reply

import (
	"regexp"
	"sort"
	"strings"
)

var (
	thinkTokenRe   = regexp.MustCompile(`(?i)/?\b(?:t|think|thinking)(?::|\s+)(off|minimal|low|medium|high|max|highest)\b`)
	verboseTokenRe = regexp.MustCompile(`(?i)/?\b(?:v|verbose)(?::|\s+)(on|full|off)\b`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

var abortWords = map[string]bool{
	"stop":  true,
	"esc":   true,
	"abort": true,
	"wait":  true,
	"exit":  true,
}

// ParseDirectives extracts think/verbose/reset/abort directives from a raw
// inbound body, per the rules in §4.B.
func ParseDirectives(rawBody string, resetTriggers []string) Directives {
	trimmed := strings.TrimSpace(rawBody)

	var d Directives
	if abortWords[strings.ToLower(trimmed)] {
		d.AbortRequested = true
	}

	thinkMatches := thinkTokenRe.FindAllStringSubmatchIndex(trimmed, -1)
	verboseMatches := verboseTokenRe.FindAllStringSubmatchIndex(trimmed, -1)

	if n := len(thinkMatches); n > 0 {
		last := thinkMatches[n-1]
		d.Think = normalizeThink(strings.ToLower(trimmed[last[2]:last[3]]))
	}
	if n := len(verboseMatches); n > 0 {
		last := verboseMatches[n-1]
		d.Verbose = normalizeVerbose(strings.ToLower(trimmed[last[2]:last[3]]))
	}

	if matchesResetTrigger(trimmed, resetTriggers) {
		d.ResetRequested = true
	}

	stripped := stripMatches(trimmed, thinkMatches, verboseMatches)
	hasTokens := len(thinkMatches) > 0 || len(verboseMatches) > 0
	if hasTokens && stripped == "" {
		d.DirectiveOnly = true
	}
	if !d.DirectiveOnly {
		d.StrippedBody = stripped
	}
	return d
}

func normalizeThink(v string) ThinkLevel {
	switch v {
	case "max", "highest":
		return ThinkHigh
	case "off", "minimal", "low", "medium", "high":
		return ThinkLevel(v)
	default:
		return ThinkLevel(v)
	}
}

func normalizeVerbose(v string) VerboseLevel {
	switch v {
	case "full", "on":
		return VerboseOn
	case "off":
		return VerboseOff
	default:
		return VerboseLevel(v)
	}
}

func matchesResetTrigger(trimmed string, triggers []string) bool {
	lower := strings.ToLower(trimmed)
	for _, trig := range triggers {
		t := strings.ToLower(strings.TrimSpace(trig))
		if t == "" {
			continue
		}
		if lower == t || strings.HasPrefix(lower, t+" ") {
			return true
		}
	}
	return false
}

// stripMatches removes every matched span (by full-match index 0,1) from s
// and collapses the remaining whitespace.
func stripMatches(s string, matchLists ...[][]int) string {
	var spans [][2]int
	for _, ml := range matchLists {
		for _, m := range ml {
			spans = append(spans, [2]int{m[0], m[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	var b strings.Builder
	last := 0
	for _, sp := range spans {
		if sp[0] < last {
			continue
		}
		b.WriteString(s[last:sp[0]])
		last = sp[1]
	}
	b.WriteString(s[last:])
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}
