// Package payment abstracts the hosted-checkout provider. The system only
// ever creates a session and later reacts to the provider's asynchronous
// outcome callback; it never polls or initiates anything else.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the terminal result the provider reports for a session.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
)

// CheckoutRequest describes one order to be paid.
type CheckoutRequest struct {
	OrderID    string
	EventTitle string
	UnitPrice  decimal.Decimal
	Currency   string
	Quantity   int
	Metadata   map[string]string
}

// CheckoutSession is the provider's hosted payment page handle. The
// session reference keys the later outcome callback.
type CheckoutSession struct {
	Reference string
	URL       string
	ExpiresAt time.Time
}

type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)
	Close(ctx context.Context) error
}
