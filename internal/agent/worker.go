package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// ErrNoCompleter indicates a worker was constructed without a model client.
var ErrNoCompleter = errors.New("agent worker requires a completer")

// Completer is the single-call surface the worker needs from a model client.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Verify Client satisfies Completer at compile time.
var _ Completer = (*Client)(nil)

// Worker is the production drone: it turns one delegation request into one
// Claude call and returns the model's answer as the work product. Its Work
// method matches the hive's WorkFunc signature and is what a Hive should be
// constructed with in live runs.
type Worker struct {
	completer Completer
}

// NewWorker creates a drone worker backed by the given completer.
func NewWorker(completer Completer) (*Worker, error) {
	if completer == nil {
		return nil, ErrNoCompleter
	}
	return &Worker{completer: completer}, nil
}

// Work runs one delegation. The princess has already stamped the session
// with the delegation record; the worker appends the model's answer so the
// session log carries the work product.
func (w *Worker) Work(ctx context.Context, req *models.DelegationRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("nil delegation request")
	}

	result, err := w.completer.Complete(ctx, systemPromptFor(req.Category), buildUserPrompt(req))
	if err != nil {
		return "", fmt.Errorf("claude call for task %s: %w", req.TaskID, err)
	}

	if req.Session != nil {
		req.Session.Append("drone", result)
	}
	return result, nil
}

// dronePreamble is the shared system prompt for every drone category. It
// keeps the model inside the delegated task: discovered work is reported,
// not done.
const dronePreamble = `You are a drone executor in a delivery hive. You have been
delegated exactly one task by your coordinating princess.

Stay inside the task boundaries:
- Do not expand scope or pick up unrelated work.
- If you discover follow-up work, list it under "Discovered tasks" at the end
  of your answer instead of doing it.
- Report what you did, not what you plan to do.`

// roleFocus gives each executor category its working instruction.
var roleFocus = map[models.Category]string{
	models.CategoryCoding:     "You implement code changes. Produce working code and name every file you touched.",
	models.CategoryTesting:    "You author and run tests. State which cases you covered and which failed.",
	models.CategoryReview:     "You review code and designs. Point at concrete locations and rank findings by severity.",
	models.CategoryResearch:   "You investigate and gather evidence. Cite the source behind every claim.",
	models.CategorySecurity:   "You analyze for vulnerabilities and harden code. Flag anything exploitable before style issues.",
	models.CategoryDeployment: "You handle builds, releases, and infrastructure. Prefer reversible steps and say how to roll back.",
	models.CategoryPlanning:   "You break work down and sequence it. Surface dependencies and risks explicitly.",
}

// systemPromptFor builds the system prompt for a category. Unknown
// categories get the shared preamble only.
func systemPromptFor(category models.Category) string {
	focus, ok := roleFocus[category]
	if !ok {
		return dronePreamble
	}
	return dronePreamble + "\n\n" + focus
}

// buildUserPrompt renders the delegation request and its session context
// into the user prompt for the Claude call.
func buildUserPrompt(req *models.DelegationRequest) string {
	var sb strings.Builder

	sb.WriteString("Task ID: ")
	sb.WriteString(req.TaskID)
	sb.WriteString("\n")
	sb.WriteString("Category: ")
	sb.WriteString(string(req.Category))
	sb.WriteString("\n")

	if req.Payload != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(req.Payload)
		sb.WriteString("\n")
	}

	if req.Session != nil {
		sctx := req.Session.Context
		if sctx.WorkDir != "" {
			sb.WriteString("\nWorking directory: ")
			sb.WriteString(sctx.WorkDir)
			sb.WriteString("\n")
		}
		if len(sctx.Todos) > 0 {
			sb.WriteString("\nOutstanding todos:\n")
			for _, todo := range sctx.Todos {
				sb.WriteString(fmt.Sprintf("- %s\n", todo))
			}
		}
		if len(sctx.Artifacts) > 0 {
			sb.WriteString("\nReference artifacts:\n")
			for _, artifact := range sctx.Artifacts {
				sb.WriteString(fmt.Sprintf("- %s\n", artifact))
			}
		}
	}

	sb.WriteString("\nComplete this task. When finished, provide a summary of what was done.\n")

	return sb.String()
}
