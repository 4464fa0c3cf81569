package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

// recFile mirrors the recording file document written by the recording
// switch: a version, the scope start time and one document list per
// component group.
type recFile struct {
	Version   int                 `json:"version"`
	StartTime string              `json:"start_time"`
	Data      [][]json.RawMessage `json:"data"`
}

// loadRecFile reads and parses a recording file, returning the raw bytes
// alongside the parsed document. Errors carry CLI exit codes.
func loadRecFile(path string) (*recFile, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("recording file not found: %s", path), err)
		}
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("reading %s", path), err)
	}
	var doc recFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, WrapExitError(ExitFailure, fmt.Sprintf("%s is not a recording document", path), err)
	}
	return &doc, raw, nil
}

// ComponentSummary describes one component document inside a recording file.
type ComponentSummary struct {
	Type    string `json:"type" yaml:"type"`
	Entries int    `json:"entries" yaml:"entries"`
}

// componentDoc is the least common denominator of the component documents:
// every tagged variant carries its entries under "recordings" or "calls".
type componentDoc struct {
	Type       string            `json:"__type__"`
	Recordings []json.RawMessage `json:"recordings"`
	Calls      []json.RawMessage `json:"calls"`
}

// summarize reduces each component group to its document tags and entry
// counts.
func (f *recFile) summarize() ([][]ComponentSummary, error) {
	groups := make([][]ComponentSummary, len(f.Data))
	for i, group := range f.Data {
		groups[i] = make([]ComponentSummary, len(group))
		for j, raw := range group {
			var doc componentDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, fmt.Errorf("component %d/%d: %w", i, j, err)
			}
			n := len(doc.Recordings)
			if doc.Calls != nil {
				n = len(doc.Calls)
			}
			groups[i][j] = ComponentSummary{Type: doc.Type, Entries: n}
		}
	}
	return groups, nil
}
