package reply

import "strings"

// TemplateContext supplies the values substituted into a template string.
type TemplateContext struct {
	Body          string
	BodyStripped  string
	From          string
	To            string
	MessageSid    string
	SessionID     string
	IsNewSession  bool
	MediaPath     string
}

// ApplyTemplate substitutes the recognised {{Token}} placeholders in
// template with values from ctx. Unknown tokens are left verbatim; the
// caller is trusted and no escaping is performed.
func ApplyTemplate(template string, ctx TemplateContext) string {
	isNewSession := "false"
	if ctx.IsNewSession {
		isNewSession = "true"
	}
	r := strings.NewReplacer(
		"{{Body}}", ctx.Body,
		"{{BodyStripped}}", ctx.BodyStripped,
		"{{From}}", ctx.From,
		"{{To}}", ctx.To,
		"{{MessageSid}}", ctx.MessageSid,
		"{{SessionId}}", ctx.SessionID,
		"{{IsNewSession}}", isNewSession,
		"{{MediaPath}}", ctx.MediaPath,
	)
	return r.Replace(template)
}
