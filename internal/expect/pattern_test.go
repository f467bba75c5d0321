package expect

import (
	"testing"
)

func TestPattern_Find(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		data    string
		want    string
		matched bool
	}{
		{"literal", Literal("(qemu)"), "QEMU 8.0 monitor\r\n(qemu) ", "(qemu)", true},
		{"literal parens are not regex", Literal("(liumos)"), "liumos", "", false},
		{"literal first occurrence", Literal("ok"), "ok ok", "ok", true},
		{"regex", MustRegex(`Linux|Darwin`), "Darwin Kernel", "Darwin", true},
		{"regex escaped", MustRegex(`\(qemu\)`), "(qemu) ", "(qemu)", true},
		{"regex no match", MustRegex(`^x$`), "abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := tt.pattern.find([]byte(tt.data))
			if (loc != nil) != tt.matched {
				t.Fatalf("find(%q) matched = %v, want %v", tt.data, loc != nil, tt.matched)
			}
			if loc != nil {
				if got := tt.data[loc[0]:loc[1]]; got != tt.want {
					t.Errorf("find(%q) = %q, want %q", tt.data, got, tt.want)
				}
			}
		})
	}
}

func TestRegex_Invalid(t *testing.T) {
	if _, err := Regex(`(unclosed`); err == nil {
		t.Error("Regex() should fail for an invalid expression")
	}
}

func TestPattern_Accessors(t *testing.T) {
	lit := Literal("Sent size: 24")
	if lit.IsRegex() {
		t.Error("literal reported as regex")
	}
	if lit.String() != "Sent size: 24" {
		t.Errorf("String() = %q", lit.String())
	}

	re := MustRegex(`\d+`)
	if !re.IsRegex() {
		t.Error("regex not reported as regex")
	}
	if re.String() != `\d+` {
		t.Errorf("String() = %q", re.String())
	}

	tests := []struct {
		p    Pattern
		want bool
	}{
		{Literal(""), true},
		{lit, false},
		{MustRegex(`x*`), true},
		{MustRegex(`^|never`), true},
		{MustRegex(`x+`), false},
		{MustRegex(`Linux|Darwin`), false},
	}
	for _, tt := range tests {
		if got := tt.p.MatchesEmpty(); got != tt.want {
			t.Errorf("%q.MatchesEmpty() = %v, want %v", tt.p, got, tt.want)
		}
	}
}
