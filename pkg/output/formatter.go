package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/ritzau/bluecity/pkg/model"
)

// PrintStatus prints the persisted project tree with colors, marking the
// active investigation
func PrintStatus(w io.Writer, source string, state model.PersistedState) {
	// Color definitions
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	faint := color.New(color.Faint)

	// Header
	bold.Fprintln(w, "BlueCity - Investigations")
	bold.Fprintln(w, "=========================")
	fmt.Fprintf(w, "Storage: %s\n", source)

	if state.IsEmpty() {
		yellow.Fprintln(w, "No saved state")
		return
	}

	total := 0
	for _, p := range state.Projects {
		total += len(p.Investigations)
	}
	fmt.Fprintf(w, "Projects: %d, investigations: %d\n", len(state.Projects), total)
	if state.Period != "" {
		fmt.Fprintf(w, "Period: %s\n", state.Period)
	}
	fmt.Fprintln(w)

	for _, p := range state.Projects {
		marker := "▸"
		if p.Expanded {
			marker = "▾"
		}
		cyan.Fprintf(w, "%s %s\n", marker, p.Name)
		if len(p.Investigations) == 0 {
			faint.Fprintln(w, "    (empty)")
		}
		for _, inv := range p.Investigations {
			line := fmt.Sprintf("    %s  %s", inv.Name, summarize(inv))
			if inv.ID == state.ActiveInvestigationID {
				green.Fprintf(w, "%s  ← active\n", line)
				continue
			}
			fmt.Fprintln(w, line)
		}
	}

	if state.ActiveInvestigationID == "" {
		fmt.Fprintln(w)
		yellow.Fprintln(w, "No active investigation")
	}
}

func summarize(inv *model.Investigation) string {
	s := fmt.Sprintf("[%d layers, %d sources", len(inv.SelectedLayers), len(inv.SelectedSources))
	if ta := inv.TrafficAnalysis; ta != nil {
		s += fmt.Sprintf(", %d closed edges", len(ta.RemovedEdges))
		if ta.HasUsage() {
			s += ", simulated"
		}
	}
	if !inv.CreatedAt.IsZero() {
		s += ", " + inv.CreatedAt.Format("2006-01-02 15:04")
	}
	return s + "]"
}
