// Package shellvars substitutes harness variables into shell command strings.
// Unlike os.Expand it leaves references it does not know exactly as written,
// so the shell still sees its own $VAR, ${VAR}, $1 and $? references.
package shellvars

import "strings"

// Expand replaces $NAME and ${NAME} where lookup reports a value. Every
// other byte of s, unknown references included, is copied unchanged.
func Expand(s string, lookup func(name string) (string, bool)) string {
	if !strings.Contains(s, "$") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '$' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if name, n := reference(s[i:]); n > 0 {
			if v, ok := lookup(name); ok {
				b.WriteString(v)
				i += n
				continue
			}
		}
		b.WriteByte('$')
		i++
	}
	return b.String()
}

// Map is a lookup over a fixed set of values.
func Map(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// reference parses a $NAME or ${NAME} at the start of s and returns the name
// and the length of the reference, or n == 0 when s does not start with one.
func reference(s string) (name string, n int) {
	if len(s) > 1 && s[1] == '{' {
		end := strings.IndexByte(s, '}')
		if end < 0 || !validName(s[2:end]) {
			return "", 0
		}
		return s[2:end], end + 1
	}
	k := 1
	for k < len(s) && isNameByte(s[k], k == 1) {
		k++
	}
	if k == 1 {
		return "", 0
	}
	return s[1:k], k
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i], i == 0) {
			return false
		}
	}
	return true
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
