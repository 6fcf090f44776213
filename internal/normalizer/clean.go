package normalizer

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	brTagRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
	brRunRe      = regexp.MustCompile(`(?:<br>){2,}`)
	anyTagRe     = regexp.MustCompile(`<[^>]*>`)
	unsafeNameRe = regexp.MustCompile(`[\\/:*?"<>|\s]`)
)

const (
	unknownName = "unknown"
	// longest named reference is &CounterClockwiseContourIntegral;
	maxEntityLen = 40
)

// newBreakOnlyPolicy strips every element except line breaks.
func newBreakOnlyPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")
	return p
}

// Clean decodes entities once, drops every tag but <br> and collapses runs
// of consecutive <br> into one. An '&' that would decode again keeps its
// escaped form, so Clean(Clean(s)) == Clean(s).
func (n *Normalizer) Clean(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	// the sanitizer's tokenizer decodes text on its own
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = n.policy.Sanitize(s)
	s = html.UnescapeString(s)
	s = brTagRe.ReplaceAllString(s, "<br>")
	s = brRunRe.ReplaceAllString(s, "<br>")
	return strings.TrimSpace(escapeEntityAmpersands(s))
}

// escapeEntityAmpersands rewrites '&' as "&amp;" wherever the text following
// it would be read as a character reference. Bare ampersands are kept.
func escapeEntityAmpersands(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		end := min(len(s), i+maxEntityLen)
		if next := strings.IndexByte(s[i+1:end], '&'); next >= 0 {
			end = i + 1 + next
		}
		if ref := s[i:end]; html.UnescapeString(ref) != ref {
			b.WriteString("&amp;")
			continue
		}
		b.WriteByte('&')
	}
	return b.String()
}

// PlainText turns cleaned HTML into newline-separated text.
func PlainText(cleaned string) string {
	return strings.TrimSpace(html.UnescapeString(strings.ReplaceAll(cleaned, "<br>", "\n")))
}

// StripTags removes every tag and trims the result.
func StripTags(s string) string {
	return strings.TrimSpace(anyTagRe.ReplaceAllString(s, ""))
}

// SanitizeName turns a free-text author name into a filesystem-safe token.
func SanitizeName(name string) string {
	name = StripTags(html.UnescapeString(name))
	name = unsafeNameRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return unknownName
	}
	return name
}
