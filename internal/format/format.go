// Package format turns the small markdown subset produced by chat models into
// HTML fragments for display.
//
// Rules run in a fixed order: bold, italic, fenced code, inline code, line
// breaks. Later rules see the markup produced by earlier ones. Delimiters are
// matched non-greedily with RE2 leftmost semantics, so a bare "****" becomes an
// empty <strong></strong> and "***a***" resolves bold first.
package format

import (
	"regexp"
	"strings"
)

var (
	boldRe       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe     = regexp.MustCompile(`\*(.*?)\*`)
	codeBlockRe  = regexp.MustCompile("(?s)```(.*?)```")
	inlineCodeRe = regexp.MustCompile("`(.*?)`")
	preBlockRe   = regexp.MustCompile(`(?s)<pre><code>.*?</code></pre>`)

	// Output only lands in element content, so quotes are left alone.
	markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// Formatter renders model replies. The zero value escapes HTML in the input
// before applying the markdown rules.
type Formatter struct {
	// AllowRawHTML passes markup in the input through untouched. Only enable it
	// for trusted model output: any tag in the reply becomes live markup.
	AllowRawHTML bool
}

// Format applies the rules with the default (escaping) formatter.
func Format(text string) string {
	return Formatter{}.Format(text)
}

// Format converts text to an HTML fragment. It is a pure function of its input.
func (f Formatter) Format(text string) string {
	if !f.AllowRawHTML {
		text = markupEscaper.Replace(text)
	}
	text = boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	text = italicRe.ReplaceAllString(text, "<em>$1</em>")
	text = codeBlockRe.ReplaceAllString(text, "<pre><code>$1</code></pre>")
	text = inlineCodeRe.ReplaceAllString(text, "<code>$1</code>")
	return breakLines(text)
}

// breakLines replaces newlines with <br/> outside of fenced code blocks; code
// keeps its newlines verbatim.
func breakLines(text string) string {
	if !strings.Contains(text, "\n") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 16)
	last := 0
	for _, loc := range preBlockRe.FindAllStringIndex(text, -1) {
		b.WriteString(strings.ReplaceAll(text[last:loc[0]], "\n", "<br/>"))
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ReplaceAll(text[last:], "\n", "<br/>"))
	return b.String()
}
