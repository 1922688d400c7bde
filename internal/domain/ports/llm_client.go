package ports

import "context"

// LLMClient provides text generation for the optional semantic matching
// enhancement. Implementations must honor ctx cancellation; callers always
// invoke it under an explicit timeout and fall back to the deterministic
// planner on any failure.
type LLMClient interface {
	// Generate produces a completion for the given prompts.
	// Returns an error on timeout or transport failure.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
