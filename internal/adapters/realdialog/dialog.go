// Package realdialog implements ports.Prompter with charmbracelet/huh forms.
//
// When stdin is not a terminal (CI logs, piped input) the prompter falls
// back to plain line-based questions so scripted use keeps working.
package realdialog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrAborted is returned when the operator cancels a dialog.
var ErrAborted = errors.New("dialog aborted")

// Prompter asks the operator questions on the controlling terminal.
type Prompter struct {
	interactive bool
	in          *bufio.Scanner
	out         io.Writer
}

// New returns a prompter that uses huh forms when stdin is a terminal.
func New() *Prompter {
	fd := os.Stdin.Fd()
	return &Prompter{
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
		in:          bufio.NewScanner(os.Stdin),
		out:         os.Stderr,
	}
}

// NewLineBased returns a prompter that never draws forms and reads answers
// one line at a time from in.
func NewLineBased(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// PickScenarios lets the operator choose scenarios to run.
func (p *Prompter) PickScenarios(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if p.interactive {
		return pickForm(names)
	}
	return p.pickLines(names)
}

// Password asks for a secret without echoing it.
func (p *Prompter) Password(title string) (string, error) {
	if p.interactive {
		return passwordForm(title)
	}
	fmt.Fprintf(p.out, "%s: ", title)
	line, ok := p.readLine()
	if !ok {
		return "", ErrAborted
	}
	return line, nil
}

func pickForm(names []string) ([]string, error) {
	var picked []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Scenarios").
				Description("Space toggles, enter runs the selection").
				Options(huh.NewOptions(names...)...).
				Value(&picked),
		),
	)
	if err := form.Run(); err != nil {
		return nil, formError(err)
	}
	return picked, nil
}

func passwordForm(title string) (string, error) {
	var secret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Value(&secret),
		),
	)
	if err := form.Run(); err != nil {
		return "", formError(err)
	}
	return secret, nil
}

func formError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return fmt.Errorf("form: %w", err)
}

// pickLines prints a numbered menu and accepts numbers, names or "all",
// separated by spaces or commas. An empty answer selects nothing.
func (p *Prompter) pickLines(names []string) ([]string, error) {
	for i, name := range names {
		fmt.Fprintf(p.out, "%3d) %s\n", i+1, name)
	}
	fmt.Fprint(p.out, "Scenarios to run (numbers, names or all): ")

	line, ok := p.readLine()
	if !ok {
		return nil, ErrAborted
	}
	return parseSelection(line, names)
}

func parseSelection(line string, names []string) ([]string, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	var picked []string
	add := func(name string) {
		if !slices.Contains(picked, name) {
			picked = append(picked, name)
		}
	}

	for _, f := range fields {
		if strings.EqualFold(f, "all") {
			return slices.Clone(names), nil
		}
		if n, err := strconv.Atoi(f); err == nil {
			if n < 1 || n > len(names) {
				return nil, fmt.Errorf("selection %d out of range 1-%d", n, len(names))
			}
			add(names[n-1])
			continue
		}
		if !slices.Contains(names, f) {
			return nil, fmt.Errorf("unknown scenario %q", f)
		}
		add(f)
	}
	return picked, nil
}

func (p *Prompter) readLine() (string, bool) {
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSuffix(p.in.Text(), "\r"), true
}
