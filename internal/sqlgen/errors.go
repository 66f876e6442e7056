package sqlgen

import "errors"

var (
	ErrEmptyCompletion  = errors.New("completion service returned no text")
	ErrNoStatementFound = errors.New("no select statement in completion")
	ErrMalformedQuery   = errors.New("malformed query")
)

// Reason maps a build error to a short label for diagnostics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyCompletion):
		return "empty_completion"
	case errors.Is(err, ErrNoStatementFound):
		return "no_statement"
	case errors.Is(err, ErrMalformedQuery):
		return "malformed_query"
	default:
		return "completion_failed"
	}
}
