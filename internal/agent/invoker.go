// Package agent implements the campaign stage agents: prompt
// construction, model invocation, and response parsing.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"
)

// Invoker is a single-shot transform from prompt text to raw model
// output. Implementations may fail on transport or backend errors.
type Invoker interface {
	// Invoke sends prompt text and returns the raw text response.
	Invoke(ctx context.Context, prompt string) (string, error)

	// Kind identifies the invocation strategy ("gemini", "simulator").
	Kind() string
}

// InvocationError reports a transport or backend failure while calling
// a stage agent. It is not retried by the orchestrator.
type InvocationError struct {
	Agent string
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Agent, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return errdefs.ErrUnavailable
}

// Selection is the outcome of the invoker capability probe. Kind and
// Reason are recorded on every StageResult produced with it.
type Selection struct {
	Invoker Invoker
	Kind    string
	Reason  string
}

// Select probes for the primary model-backed invoker and falls back to
// the deterministic simulator when the primary is unavailable. The
// selection is explicit, not hidden inside exception handling: the
// chosen strategy and its reason surface in stage result metadata.
func Select(ctx context.Context, apiKey, model string) Selection {
	if apiKey == "" {
		sel := Selection{Invoker: NewSimulator(), Kind: KindSimulator, Reason: "no API key configured"}
		slog.Info("Agent invoker selected", "kind", sel.Kind, "reason", sel.Reason)
		return sel
	}

	inv, err := NewGeminiInvoker(ctx, apiKey, model)
	if err != nil {
		sel := Selection{Invoker: NewSimulator(), Kind: KindSimulator, Reason: fmt.Sprintf("primary probe failed: %v", err)}
		slog.Warn("Primary invoker unavailable, using simulator", "error", err)
		return sel
	}

	sel := Selection{Invoker: inv, Kind: KindGemini, Reason: "primary model available"}
	slog.Info("Agent invoker selected", "kind", sel.Kind, "model", model)
	return sel
}
