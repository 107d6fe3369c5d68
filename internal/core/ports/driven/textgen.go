package driven

import "context"

// TextGenerator produces text from a system and a user instruction.
// Calls may be slow and may fail; callers treat any error as fatal for the
// operation in progress.
//
// Implementations may include:
//   - OpenAI (or any compatible endpoint)
//   - Anthropic (Claude)
//   - Ollama (local models)
type TextGenerator interface {
	// Generate returns the generated text.
	Generate(ctx context.Context, system, user string) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
