package report

import (
	"io"

	"github.com/theapemachine/qpe"
	"gopkg.in/yaml.v3"
)

func init() {
	Register("yaml", WriteYAML)
}

// WriteYAML writes the full report as a single YAML document.
func WriteYAML(w io.Writer, report *qpe.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
