package transfer

import (
	"errors"
	"fmt"
)

// ErrInternalTransfer covers unexpected failures with no more specific cause.
var ErrInternalTransfer = errors.New("internal transfer error")

// DuplicateLeadError aborts a transfer before any lead is created.
type DuplicateLeadError struct {
	ExistingID   string
	ExistingName string
}

func (e *DuplicateLeadError) Error() string {
	if e.ExistingName != "" {
		return fmt.Sprintf("lead already exists in dynamics as %q (%s)", e.ExistingName, e.ExistingID)
	}
	return fmt.Sprintf("lead already exists in dynamics (%s)", e.ExistingID)
}

// LeadCreationError carries the CRM's own rejection message.
type LeadCreationError struct {
	Cause error
}

func (e *LeadCreationError) Error() string {
	return "lead creation failed: " + e.Cause.Error()
}

func (e *LeadCreationError) Unwrap() error {
	return e.Cause
}
