// Package markup converts rich-text editor HTML into WhatsApp inline markup.
// It is a deliberate best-effort regex transform, not an HTML parser: nested
// or overlapping formatting is transcoded lossily and that behavior is
// documented, not a defect.
package markup

import (
	"html"
	"regexp"
	"strings"
)

var (
	reBold    = regexp.MustCompile(`(?is)<\s*(b|strong)[^>]*>(.*?)<\s*/\s*(b|strong)\s*>`)
	reItalic  = regexp.MustCompile(`(?is)<\s*(i|em)[^>]*>(.*?)<\s*/\s*(i|em)\s*>`)
	reStrike  = regexp.MustCompile(`(?is)<\s*(s|del|strike)[^>]*>(.*?)<\s*/\s*(s|del|strike)\s*>`)
	reBreak   = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>|<\s*/\s*(p|div)\s*>`)
	reAnyTag  = regexp.MustCompile(`(?s)<[^>]*>`)
	reRunsNL  = regexp.MustCompile(`\n{3,}`)
	reTrailWS = regexp.MustCompile(`[ \t]+\n`)
)

// ToWhatsApp transcodes HTML into WhatsApp paired-delimiter markup:
// bold -> *text*, italic -> _text_, strikethrough -> ~text~. Block closers
// and <br> become newlines, every other tag is stripped, entities are
// decoded and runs of three or more newlines collapse to two. Never fails.
func ToWhatsApp(input string) string {
	return transcode(input, true)
}

// ToPlain runs the same pipeline without inserting delimiters, producing the
// plain-text fallback form.
func ToPlain(input string) string {
	return transcode(input, false)
}

func transcode(input string, delimiters bool) string {
	s := input
	if delimiters {
		s = reBold.ReplaceAllString(s, "*$2*")
		s = reItalic.ReplaceAllString(s, "_${2}_")
		s = reStrike.ReplaceAllString(s, "~$2~")
	} else {
		s = reBold.ReplaceAllString(s, "$2")
		s = reItalic.ReplaceAllString(s, "$2")
		s = reStrike.ReplaceAllString(s, "$2")
	}
	s = reBreak.ReplaceAllString(s, "\n")
	s = reAnyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = reTrailWS.ReplaceAllString(s, "\n")
	s = reRunsNL.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
