package gmail

import "errors"

// Sentinel errors returned by Service methods. Callers classify failures
// with errors.Is rather than inspecting provider responses themselves.
var (
	// ErrAuth means the provider rejected the credentials (e.g. a revoked
	// refresh token). Terminal for the account until the user re-links.
	ErrAuth = errors.New("gmail: authentication rejected")

	// ErrProvider means the provider call failed or returned a malformed
	// response (e.g. a watch response missing historyId or expiration).
	ErrProvider = errors.New("gmail: provider error")

	// ErrMessageNotFound means the provider cannot locate a message.
	// Skippable within a batch.
	ErrMessageNotFound = errors.New("gmail: message not found")
)
