// Package fakedialog provides a test fake for ports.Prompter.
package fakedialog

// Prompter is a controllable fake Prompter for testing.
type Prompter struct {
	// Picked is returned by PickScenarios.
	Picked []string
	// Secret is returned by Password.
	Secret string
	// Err is returned by every dialog.
	Err error
	// Offered captures the names passed to PickScenarios.
	Offered []string
	// Titles captures the titles passed to Password.
	Titles []string
}

// New returns a new fake prompter.
func New() *Prompter {
	return &Prompter{}
}

// PickScenarios returns the pre-configured Picked and Err.
func (p *Prompter) PickScenarios(names []string) ([]string, error) {
	p.Offered = append([]string(nil), names...)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Picked, nil
}

// Password returns the pre-configured Secret and Err.
func (p *Prompter) Password(title string) (string, error) {
	p.Titles = append(p.Titles, title)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Secret, nil
}
