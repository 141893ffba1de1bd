package transfer

import (
	"context"
	"log/slog"

	"github.com/leadsuccess/dynamics-bridge/internal/wce"
)

// checkForDuplicate looks up an existing lead with the same primary email.
// No email means no check. Lookup infrastructure failures are logged and
// swallowed so a flaky CRM query can never block a transfer; only an actual
// match aborts.
func checkForDuplicate(ctx context.Context, api LeadFinder, lead wce.SourceLead, logger *slog.Logger) error {
	email, ok := wce.Resolve(lead, wce.FieldEmail)
	if !ok {
		return nil
	}

	matches, err := api.FindLeadsByEmail(ctx, email)
	if err != nil {
		logger.Warn("duplicate check failed, proceeding with transfer", "email", email, "error", err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	return &DuplicateLeadError{
		ExistingID:   matches[0].LeadID,
		ExistingName: matches[0].FullName,
	}
}
