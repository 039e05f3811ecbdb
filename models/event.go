package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusArchived  EventStatus = "archived"
)

type Event struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Venue       string          `json:"venue"`
	StartAt     time.Time       `json:"start_at"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity"`
	Status      EventStatus     `json:"status"`
}

// OnSale reports whether the storefront may open purchases for the event.
func (e *Event) OnSale() bool {
	return e.Status == EventStatusPublished
}

// EventSummary is the catalog row served to the storefront and the
// admin dashboard. Sold is derived from the ledger, never stored.
type EventSummary struct {
	Event
	Sold      int `json:"sold"`
	Available int `json:"available"`
	Percent   int `json:"percent"`
}
