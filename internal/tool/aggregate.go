package tool

import (
	"fmt"

	"github.com/soyeahso/dealflow/internal/domain"
)

// Failure names a failed call.
type Failure struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

// Aggregated is the combined view of one command's tool results.
type Aggregated struct {
	// Data is keyed by tool name; repeated names get a "#n" suffix.
	Data      map[string]any
	ToolsUsed []string
	Failures  []Failure
}

// Aggregate combines results in call order. Failed calls are kept in Data
// alongside successful ones so nothing is dropped.
func Aggregate(calls []domain.ToolCall, results []domain.ToolResult) Aggregated {
	agg := Aggregated{
		Data:      make(map[string]any, len(results)),
		ToolsUsed: make([]string, 0, len(calls)),
	}
	seen := make(map[string]int, len(calls))

	for i, call := range calls {
		if i >= len(results) {
			break
		}
		res := results[i]
		name := call.ToolName
		agg.ToolsUsed = append(agg.ToolsUsed, name)

		seen[name]++
		key := name
		if n := seen[name]; n > 1 {
			key = fmt.Sprintf("%s#%d", name, n)
		}

		entry := map[string]any{
			"success": res.Success,
			"message": res.Message,
		}
		if res.Data != nil {
			entry["data"] = res.Data
		}
		agg.Data[key] = entry

		if !res.Success {
			agg.Failures = append(agg.Failures, Failure{Tool: name, Message: res.Message})
		}
	}
	return agg
}

// AllFailed reports whether every call failed.
func (a Aggregated) AllFailed() bool {
	return len(a.ToolsUsed) > 0 && len(a.Failures) == len(a.ToolsUsed)
}
