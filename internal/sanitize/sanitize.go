// Package sanitize cleans text from external processes before it reaches
// CLI output or MCP clients. Markup and control characters are stripped so
// a status command cannot smuggle instructions into an agent's context.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxDiagnosticLength is the maximum length of a sanitized diagnostic.
const MaxDiagnosticLength = 300

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line.
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	reBackticks = regexp.MustCompile("`{2,}")

	reWhitespace = regexp.MustCompile(`\s+`)
)

// Diagnostic reduces free-form process output (typically stderr) to one
// plain line of at most MaxDiagnosticLength bytes.
//
// The pipeline runs in this order:
//  1. Strip ASCII control characters except \n and \t
//  2. Strip XML/HTML tags
//  3. Drop markdown heading markers
//  4. Collapse backtick runs to a single backtick
//  5. Fold all whitespace into single spaces
//  6. Truncate
func Diagnostic(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "")
	s = reBackticks.ReplaceAllString(s, "`")
	s = strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))

	if len(s) > MaxDiagnosticLength {
		s = truncate(s, MaxDiagnosticLength) + "..."
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F) from
// the string, except for newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
