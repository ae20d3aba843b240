package reply

import (
	"regexp"
	"strings"
)

// mediaExtensions is the fixed set of filesystem-path extensions recognised
// as media references. Anything else with an absolute path is left as
// ordinary prose text.
var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp3": true, ".wav": true, ".ogg": true, ".m4a": true,
	".mp4": true, ".mov": true, ".pdf": true,
}

var (
	urlRe      = regexp.MustCompile(`https?://[^\s]+`)
	mediaPathRe = regexp.MustCompile(`/[^\s]+\.[A-Za-z0-9]+`)
)

// Split scans text for media references — absolute http(s) URLs, or
// absolute filesystem paths ending in a recognised media extension — and
// returns the remaining prose alongside the extracted URLs/paths in the
// order they appeared. Extraction is deliberately narrow: this is not a
// general-purpose URL grammar.
func Split(text string) (prose string, mediaURLs []string) {
	var spans [][2]int
	for _, m := range urlRe.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{m[0], m[1]})
	}
	for _, m := range mediaPathRe.FindAllStringIndex(text, -1) {
		candidate := text[m[0]:m[1]]
		if !mediaExtensions[extensionOf(candidate)] {
			continue
		}
		if overlaps(spans, m[0], m[1]) {
			continue
		}
		spans = append(spans, [2]int{m[0], m[1]})
	}

	sortSpans(spans)
	for _, s := range spans {
		mediaURLs = append(mediaURLs, text[s[0]:s[1]])
	}
	return stripSpans(text, spans), mediaURLs
}

func sortSpans(spans [][2]int) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1][0] > spans[j][0]; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}

func extensionOf(path string) string {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 {
		return ""
	}
	return strings.ToLower(path[dot:])
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// stripSpans removes each span (already sorted, non-overlapping) from text
// and collapses the remaining whitespace.
func stripSpans(text string, spans [][2]int) string {
	if len(spans) == 0 {
		return strings.TrimSpace(text)
	}
	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s[0]])
		last = s[1]
	}
	b.WriteString(text[last:])
	return strings.Join(strings.Fields(b.String()), " ")
}
