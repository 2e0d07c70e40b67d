package handler

import (
	"fmt"
)

// InvalidAdminInput is returned for administrative requests that cannot be
// parsed or carry an unusable address or port.
type InvalidAdminInput struct {
	Field string
	Err   error
}

func (e *InvalidAdminInput) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *InvalidAdminInput) Unwrap() error {
	return e.Err
}
