package ports

// Prompter abstracts interactive operator dialogs.
// Implementations may use TUI forms or test fakes.
type Prompter interface {
	// PickScenarios lets the operator choose a subset of the given scenario
	// names. An empty result means nothing was selected.
	PickScenarios(names []string) ([]string, error)

	// Password asks for a secret without echoing it.
	Password(title string) (string, error)
}
