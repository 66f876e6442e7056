package llm

import "context"

// Request carries a prompt and its sampling parameters.
type Request struct {
	Prompt      string
	MaxTokens   int
	Stop        []string
	Temperature float64
	// N is the number of candidate completions wanted. Zero means one.
	N int
}

// Completer returns one or more candidate completions for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) ([]string, error)
}
