package memory

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned once the embedding provider has produced
// a vector whose length differs from the configured dimension. It is sticky:
// every later embed call fails with it until the process is reconfigured.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

var errDegenerateVector = errors.New("degenerate embedding vector")

// ProviderError wraps a recoverable embedding failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err must be surfaced rather than
// degraded around.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrDimensionMismatch)
}
