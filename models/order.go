package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusExpired        OrderStatus = "expired"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusExpired, OrderStatusCancelled:
		return true
	}
	return false
}

// Order wraps one reservation hold, one payment session and, once paid,
// the resulting ticket rows.
type Order struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	ChatUserID string          `json:"chat_user_id"`
	BuyerName  string          `json:"buyer_name"`
	Phone      string          `json:"phone"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	HoldToken  string          `json:"hold_token"`
	SessionRef string          `json:"session_ref"`
	Status     OrderStatus     `json:"status"`

	// NeedsRefund marks the payment-succeeded-but-hold-lost case; the
	// buyer paid and the slot is gone, so a compensating refund is due.
	NeedsRefund bool `json:"needs_refund"`

	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// Total is quantity x unit price.
func (o *Order) Total() decimal.Decimal {
	return o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// Buyer identifies a chat user that bought tickets for an event.
type Buyer struct {
	ChatUserID string `json:"chat_user_id"`
	Name       string `json:"name"`
}
