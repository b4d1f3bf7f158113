// Package sanitize maps arbitrary path segments to a restricted storage-key
// alphabet. The content-addressed upload path never needs it (keys are hex
// digests), but any key derived from a human path goes through here first.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// replacements is applied before unicode decomposition so common German
// characters keep a readable transliteration instead of losing their umlaut,
// and shell/URL metacharacters become harmless.
var replacements = map[rune]string{
	'ä': "ae", 'ö': "oe", 'ü': "ue", 'ß': "ss",
	'Ä': "Ae", 'Ö': "Oe", 'Ü': "Ue",
	'[': "(", ']': ")",
	'{': "(", '}': ")",
	'#': "_", '%': "_", '&': "_", '*': "_",
	'<': "_", '>': "_", '|': "_", '"': "_",
	'?': "_", '\\': "_", ':': "_",
}

// stripMarks decomposes to NFKD and drops combining marks, so é becomes e
// and ñ becomes n.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

var underscoreRun = regexp.MustCompile(`_+`)

// Segment sanitizes a single path segment. The result contains only ASCII;
// the function is idempotent and deterministic.
func Segment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := replacements[r]; ok {
			b.WriteString(rep)
		} else {
			b.WriteRune(r)
		}
	}

	out, _, err := transform.String(stripMarks, b.String())
	if err != nil {
		out = b.String()
	}

	var ascii strings.Builder
	ascii.Grow(len(out))
	for _, r := range out {
		if r > unicode.MaxASCII {
			ascii.WriteRune('_')
		} else {
			ascii.WriteRune(r)
		}
	}

	return underscoreRun.ReplaceAllString(ascii.String(), "_")
}

// Path sanitizes every segment of a /-separated path, preserving the
// separators themselves.
func Path(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = Segment(seg)
	}
	return strings.Join(segments, "/")
}
