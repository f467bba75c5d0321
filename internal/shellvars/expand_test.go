package shellvars

import "testing"

func TestExpand(t *testing.T) {
	vars := Map(map[string]string{
		"ROOT_DIR": "/src/liumos",
		"APP_DIR":  "/liumos/app",
		"EMPTY":    "",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no references", "make run_docker", "make run_docker"},
		{"braced", "make -C ${ROOT_DIR} run", "make -C /src/liumos run"},
		{"bare", "cd $APP_DIR/udpclient", "cd /liumos/app/udpclient"},
		{"known empty value", "x${EMPTY}y", "xy"},
		{"unknown bare kept", `[ "$cmd" = q ] && exit 0`, `[ "$cmd" = q ] && exit 0`},
		{"unknown braced kept", "echo ${HOME}/x", "echo ${HOME}/x"},
		{"loop variable", `for f in *.img; do echo "$f"; done`, `for f in *.img; do echo "$f"; done`},
		{"shell specials", "echo $? $$ $1 $@ ${#x}", "echo $? $$ $1 $@ ${#x}"},
		{"unterminated brace", "echo ${ROOT_DIR", "echo ${ROOT_DIR"},
		{"trailing dollar", "cost 5$", "cost 5$"},
		{"name stops at punctuation", "$ROOT_DIR.bak", "/src/liumos.bak"},
		{"mixed", `${ROOT_DIR}/run.sh "$ARG" ${APP_DIR}`, `/src/liumos/run.sh "$ARG" /liumos/app`},
		{"non-ascii kept", "écho ${ROOT_DIR} ✓", "écho /src/liumos ✓"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.in, vars); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpand_NilMap(t *testing.T) {
	if got := Expand("echo $X ${Y}", Map(nil)); got != "echo $X ${Y}" {
		t.Errorf("Expand() = %q", got)
	}
}
