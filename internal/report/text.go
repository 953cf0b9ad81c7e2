package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/theapemachine/qpe"
)

func init() {
	Register("text", WriteText)
}

/*
WriteText prints a styled header followed by one sentence per qubit count.
Styling follows the destination: a pipe or buffer gets plain text.
*/
func WriteText(w io.Writer, report *qpe.Report) error {
	renderer := lipgloss.NewRenderer(w)
	header := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	failure := renderer.NewStyle().Foreground(lipgloss.Color("203"))

	title := fmt.Sprintf(
		"π sweep %s · backend %s · %d shots · seed %d",
		report.RunID, report.Backend, report.Shots, report.Seed,
	)
	if _, err := fmt.Fprintln(w, header.Render(title)); err != nil {
		return err
	}

	for _, result := range report.Results {
		var line string

		switch result.Status {
		case qpe.StatusConverged:
			line = fmt.Sprintf(
				"using %d qubits, after %d iterations, the estimate of pi is %v",
				result.Qubits, result.Iterations, result.Estimate,
			)
		case qpe.StatusNotConverged:
			line = failure.Render(fmt.Sprintf(
				"using %d qubits: failed to converge after %d iterations (last estimate %v)",
				result.Qubits, result.Iterations, result.Estimate,
			))
		default:
			line = failure.Render(fmt.Sprintf(
				"using %d qubits: failed: %s", result.Qubits, result.Error,
			))
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%d of %d converged\n", report.Converged(), len(report.Results))
	return err
}
