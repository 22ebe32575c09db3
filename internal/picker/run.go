package picker

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/looter/nuclide/internal/search"
)

// Run shows the picker on out (normally the terminal's stderr so stdout
// stays free for the chosen path) and blocks until the user picks or
// cancels.
func Run(ctx context.Context, provider Provider, query string, in io.Reader, out io.Writer) (search.Result, bool, error) {
	p := tea.NewProgram(
		NewModel(provider, query),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)

	final, err := p.Run()
	if err != nil {
		return search.Result{}, false, fmt.Errorf("picker: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return search.Result{}, false, fmt.Errorf("picker: unexpected model %T", final)
	}
	r, chosen := m.Result()
	return r, chosen, nil
}
