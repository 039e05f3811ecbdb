package status

import "errors"

var (
	// Ledger rejections.
	ErrSoldOut       = errors.New("ledger: requested quantity exceeds available capacity")
	ErrHoldNotFound  = errors.New("ledger: hold not found")
	ErrHoldNotActive = errors.New("ledger: hold is not active")

	// Order state machine.
	ErrOrderNotFound     = errors.New("order: order not found")
	ErrInvalidTransition = errors.New("order: transition out of a terminal state")

	// Reconciliation.
	ErrUnknownSession = errors.New("payment: unknown payment session reference")
	ErrUnknownOutcome = errors.New("payment: unknown payment outcome")

	// Purchase validation.
	ErrEventNotFound   = errors.New("catalog: event not found")
	ErrEventNotOnSale  = errors.New("catalog: event is not on sale")
	ErrInvalidQuantity = errors.New("order: invalid ticket quantity")
	ErrInvalidPhone    = errors.New("order: phone number failed validation")

	// Broadcast.
	ErrJobNotFound = errors.New("broadcast: job not found")
)
