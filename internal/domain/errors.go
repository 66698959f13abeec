package domain

import "errors"

var (
	ErrNotFound           = errors.New("record not found")
	ErrValidation         = errors.New("validation failed")
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateReference = errors.New("duplicate gateway reference")
	ErrAlreadyTerminal    = errors.New("transaction already settled")

	// Gateway error classes. Unavailable is the only one callers may retry
	// without investigation.
	ErrGatewayRejected    = errors.New("gateway rejected request")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrGatewayProtocol    = errors.New("unexpected gateway response")
)
