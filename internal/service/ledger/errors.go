package ledger

import "errors"

// Sentinel errors for the ledger service layer.
var (
	ErrInvalidActivity = errors.New("invalid activity")
)
