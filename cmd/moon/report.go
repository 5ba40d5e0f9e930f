package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/pipeline"
	"github.com/moonrepo/moon-core/internal/ui"
)

// ciReportAction is one row of ciReport.json, per spec.md §6 ("ci always
// summarizes, names report ciReport.json").
type ciReportAction struct {
	Label      string `json:"label"`
	State      string `json:"state"`
	DurationMs int64  `json:"durationMs"`
	Hash       string `json:"hash,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ciReport struct {
	Passed  int               `json:"passed"`
	Cached  int               `json:"cached"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
	Actions []ciReportAction  `json:"actions"`
}

func writeCIReport(root string, report *pipeline.Report) error {
	r := ciReport{}
	for _, a := range report.Actions {
		row := ciReportAction{
			Label:      a.Node.Label(),
			State:      a.State.String(),
			DurationMs: a.Duration().Milliseconds(),
			Hash:       a.Hash,
		}
		if a.Err != nil {
			row.Error = a.Err.Error()
		}
		switch a.State {
		case action.StatePassed:
			r.Passed++
		case action.StateCached, action.StateCachedFromRemote:
			r.Cached++
		case action.StateFailed, action.StateTimedOut, action.StateAborted:
			r.Failed++
		case action.StateSkipped:
			r.Skipped++
		}
		r.Actions = append(r.Actions, row)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(root, ".moon", "ciReport.json")
	return os.WriteFile(path, data, 0o644)
}

// renderReport prints the pipeline.Report as the per-action prefixed
// lines and trailing summary turbo's run command prints, adapted from
// turbo's run summary to spec.md §7's "failed actions print the last
// attempt's stderr; the summary line counts passed/cached/skipped/failed."
func renderReport(report *pipeline.Report) {
	console := ui.Default()
	passed, cached, failed, skipped := 0, 0, 0, 0
	for _, a := range report.Actions {
		switch a.State {
		case action.StatePassed:
			passed++
			console.Output(ui.PassedPrefix + " " + a.Node.Label() + " (" + a.Duration().String() + ")")
		case action.StateCached, action.StateCachedFromRemote:
			cached++
			console.Output(ui.CachedPrefix + " " + a.Node.Label() + " (" + a.Duration().String() + ")")
		case action.StateFailed, action.StateTimedOut, action.StateAborted:
			failed++
			msg := ui.FailedPrefix + " " + a.Node.Label()
			if a.Err != nil {
				msg += ": " + a.Err.Error()
			}
			console.Error(msg)
			for i := len(a.Operations) - 1; i >= 0; i-- {
				if a.Operations[i].Kind == action.OperationTaskExecution {
					if stderr := a.Operations[i].Stderr; stderr != "" {
						console.Error(stderr)
					}
					break
				}
			}
		case action.StateSkipped:
			skipped++
		}
	}
	summary := fmt.Sprintf("%s: %d passed, %d cached, %d failed, %d skipped", ui.Bold("Summary"), passed, cached, failed, skipped)
	console.Output(summary)
}
