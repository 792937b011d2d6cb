package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a product or track cannot be resolved
// against the indexed archive. A file that exists remotely but was never
// retrieved locally is indistinguishable from one that does not exist.
var ErrNotFound = errors.New("not found in archive index")

// ErrAmbiguous is the sentinel all AmbiguousError values wrap.
var ErrAmbiguous = errors.New("ambiguous product substring")

// AmbiguousError reports a product substring that matches more than one
// known product directory.
type AmbiguousError struct {
	Pattern string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("product substring %q matches several products: %s",
		e.Pattern, strings.Join(e.Matches, ", "))
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguous
}
