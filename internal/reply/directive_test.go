package reply

import "testing"

func TestParseDirectives_AbortWord(t *testing.T) {
	for _, w := range []string{"stop", "ESC", " abort ", "Wait", "exit"} {
		d := ParseDirectives(w, nil)
		if !d.AbortRequested {
			t.Errorf("ParseDirectives(%q).AbortRequested = false, want true", w)
		}
	}
}

func TestParseDirectives_NotAbort(t *testing.T) {
	d := ParseDirectives("stop the car", nil)
	if d.AbortRequested {
		t.Error("expected AbortRequested=false for non-exact abort phrase")
	}
}

func TestParseDirectives_ThinkToken(t *testing.T) {
	cases := map[string]ThinkLevel{
		"/think:high hello":  ThinkHigh,
		"think low hello":    ThinkLow,
		"t:max hello":        ThinkHigh,
		"thinking highest":   ThinkHigh,
		"/think:off hello":   ThinkOff,
	}
	for body, want := range cases {
		d := ParseDirectives(body, nil)
		if d.Think != want {
			t.Errorf("ParseDirectives(%q).Think = %q, want %q", body, d.Think, want)
		}
	}
}

func TestParseDirectives_VerboseToken(t *testing.T) {
	d := ParseDirectives("v:full please", nil)
	if d.Verbose != VerboseOn {
		t.Errorf("Verbose = %q, want on", d.Verbose)
	}
	d = ParseDirectives("verbose off", nil)
	if d.Verbose != VerboseOff {
		t.Errorf("Verbose = %q, want off", d.Verbose)
	}
}

func TestParseDirectives_LastWins(t *testing.T) {
	d := ParseDirectives("think:low think:high", nil)
	if d.Think != ThinkHigh {
		t.Errorf("Think = %q, want high (last wins)", d.Think)
	}
}

func TestParseDirectives_DirectiveOnly(t *testing.T) {
	d := ParseDirectives("  /think:high  ", nil)
	if !d.DirectiveOnly {
		t.Error("expected DirectiveOnly=true for a body that is solely a directive")
	}
	if d.StrippedBody != "" {
		t.Errorf("StrippedBody = %q, want empty when DirectiveOnly", d.StrippedBody)
	}
}

func TestParseDirectives_StrippedBodyNonEmpty(t *testing.T) {
	d := ParseDirectives("think:high what's the weather", nil)
	if d.DirectiveOnly {
		t.Error("expected DirectiveOnly=false when prose remains")
	}
	if d.StrippedBody != "what's the weather" {
		t.Errorf("StrippedBody = %q, want %q", d.StrippedBody, "what's the weather")
	}
}

func TestParseDirectives_ResetTrigger(t *testing.T) {
	triggers := []string{"/new", "/reset"}
	d := ParseDirectives("/new", triggers)
	if !d.ResetRequested {
		t.Error("expected exact trigger match to set ResetRequested")
	}
	d = ParseDirectives("/reset please", triggers)
	if !d.ResetRequested {
		t.Error("expected '<trigger> anything' prefix to set ResetRequested")
	}
	d = ParseDirectives("/newish", triggers)
	if d.ResetRequested {
		t.Error("did not expect a non-word-boundary prefix to match")
	}
}
