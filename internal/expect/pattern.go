// Package expect waits for patterns to appear in a console's output stream.
package expect

import (
	"bytes"
	"fmt"
	"regexp"
)

// Pattern is an un-anchored literal substring or regular expression.
type Pattern struct {
	text string
	re   *regexp.Regexp
}

// Literal returns a pattern matching s exactly.
func Literal(s string) Pattern {
	return Pattern{text: s}
}

// Regex compiles expr into a pattern.
func Regex(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return Pattern{text: expr, re: re}, nil
}

// MustRegex is like Regex but panics on an invalid expression.
func MustRegex(expr string) Pattern {
	p, err := Regex(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the literal text or the regular expression source.
func (p Pattern) String() string {
	return p.text
}

// IsRegex reports whether p is a regular expression.
func (p Pattern) IsRegex() bool {
	return p.re != nil
}

// MatchesEmpty reports whether p matches the empty string. Awaiting such a
// pattern succeeds at once without consuming any output.
func (p Pattern) MatchesEmpty() bool {
	if p.re != nil {
		return p.re.MatchString("")
	}
	return p.text == ""
}

// find returns submatch index pairs for the leftmost match in data, or nil.
// Index 0 and 1 delimit the whole match.
func (p Pattern) find(data []byte) []int {
	if p.re != nil {
		return p.re.FindSubmatchIndex(data)
	}
	i := bytes.Index(data, []byte(p.text))
	if i < 0 {
		return nil
	}
	return []int{i, i + len(p.text)}
}
