package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"github.com/YossiGold99/PartyFlow-V2/models"
)

type TicketStore interface {
	// CreateBatch persists the tickets of a freshly paid order, filling
	// in the generated ids.
	CreateBatch(ctx context.Context, tickets []*models.Ticket) error

	// ListByBuyer returns a buyer's tickets joined with event details,
	// newest first.
	ListByBuyer(ctx context.Context, chatUserID string) ([]models.TicketView, error)
}

type PBTicketStore struct {
	app core.App
}

func NewPBTicketStore(app core.App) *PBTicketStore {
	return &PBTicketStore{app: app}
}

func (s *PBTicketStore) CreateBatch(_ context.Context, tickets []*models.Ticket) error {
	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return fmt.Errorf("store: tickets collection: %w", err)
	}

	return s.app.RunInTransaction(func(txApp core.App) error {
		for _, ticket := range tickets {
			record := core.NewRecord(collection)
			record.Set("order", ticket.OrderID)
			record.Set("event", ticket.EventID)
			record.Set("qr_payload", ticket.QRPayload)
			if err := txApp.Save(record); err != nil {
				return fmt.Errorf("store: create ticket: %w", err)
			}
			ticket.ID = record.Id
			ticket.IssuedAt = record.GetDateTime("created").Time()
		}
		return nil
	})
}

func (s *PBTicketStore) ListByBuyer(_ context.Context, chatUserID string) ([]models.TicketView, error) {
	var rows []struct {
		ID         string `db:"id"`
		OrderID    string `db:"order_id"`
		EventID    string `db:"event_id"`
		QRPayload  string `db:"qr_payload"`
		IssuedAt   string `db:"issued_at"`
		EventTitle string `db:"event_title"`
		EventVenue string `db:"event_venue"`
		EventStart string `db:"event_start"`
	}
	err := s.app.DB().NewQuery(`
		SELECT t.id, t."order" AS order_id, t.event AS event_id,
		       t.qr_payload, t.created AS issued_at,
		       e.title AS event_title, e.venue AS event_venue,
		       e.start_at AS event_start
		FROM tickets t
		JOIN orders o ON o.id = t."order"
		JOIN events e ON e.id = t.event
		WHERE o.chat_user_id = {:chatUserID}
		ORDER BY t.created DESC
	`).Bind(dbx.Params{"chatUserID": chatUserID}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store: tickets for buyer %s: %w", chatUserID, err)
	}

	views := make([]models.TicketView, 0, len(rows))
	for _, row := range rows {
		views = append(views, models.TicketView{
			Ticket: models.Ticket{
				ID:        row.ID,
				OrderID:   row.OrderID,
				EventID:   row.EventID,
				QRPayload: row.QRPayload,
				IssuedAt:  parsePBTime(row.IssuedAt),
			},
			EventTitle: row.EventTitle,
			EventVenue: row.EventVenue,
			EventStart: parsePBTime(row.EventStart),
		})
	}
	return views, nil
}

func parsePBTime(raw string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05.000Z", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
