package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const timeFormat = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printResult writes the synthesis and, when verbose, the plan and the
// outcome of each agent
func printResult(w io.Writer, result *model.CoordinationResult, verbose bool) {
	fmt.Fprintln(w, result.Synthesis)
	if !verbose {
		return
	}

	fmt.Fprintf(w, "\n--- conversation %s (%d steps, %s)\n", result.ConversationID, result.StepsUsed, result.Duration)
	if result.Plan != nil {
		fmt.Fprintf(w, "plan: %s\n", result.Plan.Strategy)
	}

	types := make([]string, 0, len(result.Results))
	for t := range result.Results {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		out := result.Results[model.AgentType(t)]
		if out.Success {
			fmt.Fprintf(w, "  %-10s ok      %s\n", t, out.Metadata.Duration)
		} else {
			fmt.Fprintf(w, "  %-10s failed  %s\n", t, out.Metadata.Error)
		}
	}
}

func printMemories(w io.Writer, memories []*model.ScoredMemory) {
	if len(memories) == 0 {
		fmt.Fprintln(w, "No memories found")
		return
	}
	for _, m := range memories {
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%.2f\t%s\n",
			m.Memory.ID,
			m.Score,
			m.Memory.Type,
			m.Memory.Metadata.Confidence,
			m.Memory.Content,
		)
	}
}
