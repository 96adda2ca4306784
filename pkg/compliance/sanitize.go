package compliance

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	leadingFenceRe  = regexp.MustCompile("^```[a-zA-Z0-9_-]*\\s*")
	trailingFenceRe = regexp.MustCompile("\\s*```$")
	eventHandlerRe  = regexp.MustCompile(`(?i)\son\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsHrefDoubleRe  = regexp.MustCompile(`(?i)href\s*=\s*"\s*javascript:[^"]*"`)
	jsHrefSingleRe  = regexp.MustCompile(`(?i)href\s*=\s*'\s*javascript:[^']*'`)

	// RE2 has no backreferences, so each element gets its own pattern.
	dangerousBlockRes = func() []*regexp.Regexp {
		tags := []string{"script", "style", "iframe", "object", "embed"}
		out := make([]*regexp.Regexp, len(tags))
		for i, tag := range tags {
			out[i] = regexp.MustCompile(`(?is)<` + tag + `\b[^>]*>.*?</` + tag + `\s*>`)
		}
		return out
	}()
)

// Sanitize cleans model output for storage and publishing. It drops NUL
// bytes, unwraps a surrounding code fence, removes script, style,
// iframe, object and embed elements with their content, strips inline
// on* handlers, rewrites javascript: hrefs to "#" and truncates to
// maxLen characters. A non-positive maxLen uses DefaultMaxLength.
func Sanitize(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.TrimSpace(text)

	text = leadingFenceRe.ReplaceAllString(text, "")
	text = trailingFenceRe.ReplaceAllString(text, "")

	for _, re := range dangerousBlockRes {
		text = re.ReplaceAllString(text, "")
	}
	text = eventHandlerRe.ReplaceAllString(text, "")
	text = jsHrefDoubleRe.ReplaceAllString(text, `href="#"`)
	text = jsHrefSingleRe.ReplaceAllString(text, `href="#"`)

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxLen {
		text = strings.TrimRightFunc(string([]rune(text)[:maxLen]), unicode.IsSpace)
	}
	return text
}
