package reply

import "testing"

func TestApplyTemplate_Substitutes(t *testing.T) {
	ctx := TemplateContext{
		Body:         "hello",
		BodyStripped: "hello",
		From:         "+1",
		To:           "+2",
		MessageSid:   "sid-1",
		SessionID:    "sess-1",
		IsNewSession: true,
		MediaPath:    "/tmp/a.jpg",
	}
	got := ApplyTemplate("from={{From}} body={{Body}} new={{IsNewSession}} media={{MediaPath}}", ctx)
	want := "from=+1 body=hello new=true media=/tmp/a.jpg"
	if got != want {
		t.Errorf("ApplyTemplate() = %q, want %q", got, want)
	}
}

func TestApplyTemplate_UnknownTokenLeftVerbatim(t *testing.T) {
	got := ApplyTemplate("hi {{Unknown}} there", TemplateContext{})
	want := "hi {{Unknown}} there"
	if got != want {
		t.Errorf("ApplyTemplate() = %q, want %q", got, want)
	}
}

func TestApplyTemplate_NoTokens(t *testing.T) {
	got := ApplyTemplate("plain text", TemplateContext{Body: "x"})
	if got != "plain text" {
		t.Errorf("ApplyTemplate() = %q, want unchanged", got)
	}
}
