// Package mock provides test double implementations of AI service interfaces.
//
// The mocks allow tests to run without external AI service dependencies and
// enable controlled, deterministic behavior. Each mock exposes function
// fields for behavior injection and a CallCount for assertions.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder(4)
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return []float32{1, 0, 0, 0}, nil
//	}
//	provider := mock.NewMockProviderWithServices(embedder,
//	    mock.NewMockEntityExtractor(), mock.NewMockCommitmentExtractor(), mock.NewMockCompleter(""))
//
// # Default Behavior
//
//   - MockEmbedder: unit vectors derived from a hash of the text
//   - MockEntityExtractor: capitalized words as entities of type "other"
//   - MockCommitmentExtractor: sentences containing "will" or "must"
//   - MockCompleter: a fixed reply
package mock
