package report

import (
	"encoding/json"
	"io"

	"github.com/theapemachine/qpe"
)

func init() {
	Register("jsonl", WriteJSONL)
}

type jsonlRecord struct {
	RunID string `json:"run_id"`
	*qpe.Result
}

// WriteJSONL emits one JSON object per result, tagged with the run id.
func WriteJSONL(w io.Writer, report *qpe.Report) error {
	enc := json.NewEncoder(w)
	for _, result := range report.Results {
		if err := enc.Encode(jsonlRecord{RunID: report.RunID, Result: result}); err != nil {
			return err
		}
	}
	return nil
}
