package llm

import "context"

// TextGenerator is the interface for generative text completion.
// Reflection and consolidation build single-string prompts (not chat)
// and expect the full reassembled answer back.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// HealthChecker probes backend reachability. Implementations must keep
// the probe cheap: a short-timeout GET, never a generation call.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
