package subscription

import (
	"fmt"
	"strings"
)

// ValidationError carries every violation found in a registration or update
// request, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid subscription: " + strings.Join(e.Violations, "; ")
}

// NotFoundError signals an unknown subscriber id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("subscriber %q not found", e.ID)
}
