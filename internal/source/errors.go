package source

import (
	"fmt"

	"go.uber.org/zap"
)

// FetchError is a failed page retrieval: network failure, timeout, non-2xx
// status, a block page, or a robots.txt refusal.
type FetchError struct {
	URL       string
	Status    int
	Blocked   BlockType
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	switch {
	case e.Blocked != BlockNone:
		return fmt.Sprintf("fetch %s: blocked (%s)", e.URL, e.Blocked)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: failed", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether an immediate retry may succeed.
func (e *FetchError) Transient() bool { return e.Retryable }

// ParseError means a page lacked the structure its adapter expects.
type ParseError struct {
	Source string
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("parse %s %s: %s", e.Source, e.URL, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Source, e.Reason)
}

// Transient is always false: the same markup parses the same way twice.
func (e *ParseError) Transient() bool { return false }

// missingStructure logs the diagnostic and returns the ParseError for a page
// without its expected container.
func missingStructure(source, selector string) error {
	zap.L().Warn("source: expected structure missing",
		zap.String("source", source),
		zap.String("selector", selector),
	)
	return &ParseError{Source: source, Reason: fmt.Sprintf("missing %q", selector)}
}
