package models

import (
	"fmt"
	"time"
)

// Ticket is immutable once issued. The QR payload is an opaque string;
// rendering it to an image is the chat front-end's job.
type Ticket struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	EventID   string    `json:"event_id"`
	QRPayload string    `json:"qr_payload"`
	IssuedAt  time.Time `json:"issued_at"`
}

// TicketQRPayload builds the string encoded into a ticket's QR code.
// Door staff scan it and compare against the admin export, so the format
// is part of the operational contract.
func TicketQRPayload(serial, eventTitle, owner string) string {
	return fmt.Sprintf("TICKET-ID:%s | EVENT:%s | OWNER:%s", serial, eventTitle, owner)
}

// TicketView is a ticket joined with its event, served to the buyer's
// /my_tickets flow.
type TicketView struct {
	Ticket
	EventTitle string    `json:"event_title"`
	EventVenue string    `json:"event_venue"`
	EventStart time.Time `json:"event_start"`
}
