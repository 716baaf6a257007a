package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// kindConfig is reported for failures that happen before reconciliation
// starts, such as an unreadable config file or a missing API key.
const kindConfig = "config"

// failure is the document printed when a command cannot complete.
type failure struct {
	Failed  bool   `json:"failed" yaml:"failed"`
	Message string `json:"msg" yaml:"msg"`
	Kind    string `json:"kind" yaml:"kind"`
}

func newFailure(kind string, err error) failure {
	return failure{
		Failed:  true,
		Message: fmt.Sprintf("Failed to manage DNS policy: %v", err),
		Kind:    kind,
	}
}

// render writes v to w as a single JSON or YAML document.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
