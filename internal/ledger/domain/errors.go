package domain

import "errors"

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrInvalidEntryDate    = errors.New("invalid_entry_date")
	ErrInvalidDateRange    = errors.New("invalid_date_range")
	ErrTransactionRequired = errors.New("transaction_required")
)
