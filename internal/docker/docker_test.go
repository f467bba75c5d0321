package docker

import (
	"reflect"
	"testing"
)

func TestExecArgs(t *testing.T) {
	tests := []struct {
		name string
		opts ExecOptions
		want []string
	}{
		{
			name: "builder shell",
			opts: ExecOptions{Container: "liumos-builder0", Interactive: true},
			want: []string{"docker", "exec", "-it", "liumos-builder0", "/bin/bash"},
		},
		{
			name: "explicit command",
			opts: ExecOptions{Container: "c", Command: []string{"ls", "-la"}},
			want: []string{"docker", "exec", "c", "ls", "-la"},
		},
		{
			name: "user and workdir",
			opts: ExecOptions{Container: "c", User: "root", WorkDir: "/liumos", Interactive: true},
			want: []string{"docker", "exec", "-it", "-u", "root", "-w", "/liumos", "c", "/bin/bash"},
		},
		{
			name: "env sorted",
			opts: ExecOptions{Container: "c", Env: map[string]string{"PS1": "x", "NO_COLOR": "1"}},
			want: []string{"docker", "exec", "-e", "NO_COLOR=1", "-e", "PS1=x", "c", "/bin/bash"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExecArgs(tt.opts); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExecArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecCommand(t *testing.T) {
	got := ExecCommand(ExecOptions{
		Container: "liumos-builder0",
		Command:   []string{"/bin/sh", "-c", "echo 'hi'"},
	})
	want := `docker exec liumos-builder0 /bin/sh -c 'echo '\''hi'\'''`
	if got != want {
		t.Errorf("ExecCommand() = %s, want %s", got, want)
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":            "''",
		"plain":       "plain",
		"/liumos/app": "/liumos/app",
		"KEY=value":   "KEY=value",
		"two words":   "'two words'",
		"(liumos) ":   "'(liumos) '",
		"it's":        `'it'\''s'`,
	}
	for in, want := range tests {
		if got := Quote(in); got != want {
			t.Errorf("Quote(%q) = %s, want %s", in, got, want)
		}
	}
}
