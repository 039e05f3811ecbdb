package store

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// EventSales ranks an event by confirmed ticket sales.
type EventSales struct {
	EventID     string          `json:"event_id"`
	Title       string          `json:"title"`
	TicketsSold int             `json:"tickets_sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// DashboardStats are the admin headline numbers, always computed from
// order data rather than cached counters.
type DashboardStats struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TicketsSold  int             `json:"tickets_sold"`
	TopEvent     string          `json:"top_event"`
}

// EventExportRow feeds the events CSV report.
type EventExportRow struct {
	EventID  string
	Title    string
	StartAt  string
	Venue    string
	Price    decimal.Decimal
	Capacity int
	Sold     int
	Revenue  decimal.Decimal
}

// TicketExportRow feeds the guest list CSV.
type TicketExportRow struct {
	TicketID   string
	EventTitle string
	BuyerName  string
	Phone      string
	ChatUserID string
	IssuedAt   string
	QRPayload  string
}

type StatsStore interface {
	Dashboard(ctx context.Context) (*DashboardStats, error)
	TopEvents(ctx context.Context, limit int) ([]EventSales, error)
	ExportEvents(ctx context.Context) ([]EventExportRow, error)
	ExportTickets(ctx context.Context) ([]TicketExportRow, error)
}

type PBStatsStore struct {
	app core.App
}

func NewPBStatsStore(app core.App) *PBStatsStore {
	return &PBStatsStore{app: app}
}

func (s *PBStatsStore) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var row struct {
		Revenue float64 `db:"revenue"`
		Sold    int     `db:"sold"`
	}
	err := s.app.DB().NewQuery(`
		SELECT COALESCE(SUM(quantity * unit_price), 0) AS revenue,
		       COALESCE(SUM(quantity), 0) AS sold
		FROM orders
		WHERE status = 'paid'
	`).One(&row)
	if err != nil {
		return nil, fmt.Errorf("store: dashboard stats: %w", err)
	}

	stats := &DashboardStats{
		TotalRevenue: decimal.NewFromFloat(row.Revenue).Round(2),
		TicketsSold:  row.Sold,
		TopEvent:     "No Sales Yet",
	}

	top, err := s.TopEvents(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		stats.TopEvent = top[0].Title
	}
	return stats, nil
}

func (s *PBStatsStore) TopEvents(_ context.Context, limit int) ([]EventSales, error) {
	if limit < 1 {
		limit = 5
	}

	var rows []struct {
		EventID string  `db:"event_id"`
		Title   string  `db:"title"`
		Sold    int     `db:"sold"`
		Revenue float64 `db:"revenue"`
	}
	err := s.app.DB().NewQuery(`
		SELECT e.id AS event_id, e.title AS title,
		       COALESCE(SUM(o.quantity), 0) AS sold,
		       COALESCE(SUM(o.quantity * o.unit_price), 0) AS revenue
		FROM orders o
		JOIN events e ON e.id = o.event
		WHERE o.status = 'paid'
		GROUP BY e.id
		ORDER BY sold DESC
		LIMIT {:limit}
	`).Bind(dbx.Params{"limit": limit}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store: top events: %w", err)
	}

	sales := make([]EventSales, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, EventSales{
			EventID:     row.EventID,
			Title:       row.Title,
			TicketsSold: row.Sold,
			Revenue:     decimal.NewFromFloat(row.Revenue).Round(2),
		})
	}
	return sales, nil
}

func (s *PBStatsStore) ExportEvents(_ context.Context) ([]EventExportRow, error) {
	var rows []struct {
		EventID  string  `db:"event_id"`
		Title    string  `db:"title"`
		StartAt  string  `db:"start_at"`
		Venue    string  `db:"venue"`
		Price    float64 `db:"price"`
		Capacity int     `db:"capacity"`
		Sold     int     `db:"sold"`
		Revenue  float64 `db:"revenue"`
	}
	err := s.app.DB().NewQuery(`
		SELECT e.id AS event_id, e.title AS title, e.start_at AS start_at,
		       e.venue AS venue, e.price AS price, e.capacity AS capacity,
		       COALESCE(SUM(CASE WHEN o.status = 'paid' THEN o.quantity END), 0) AS sold,
		       COALESCE(SUM(CASE WHEN o.status = 'paid' THEN o.quantity * o.unit_price END), 0) AS revenue
		FROM events e
		LEFT JOIN orders o ON o.event = e.id
		GROUP BY e.id
		ORDER BY e.start_at
	`).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store: export events: %w", err)
	}

	export := make([]EventExportRow, 0, len(rows))
	for _, row := range rows {
		export = append(export, EventExportRow{
			EventID:  row.EventID,
			Title:    row.Title,
			StartAt:  row.StartAt,
			Venue:    row.Venue,
			Price:    decimal.NewFromFloat(row.Price),
			Capacity: row.Capacity,
			Sold:     row.Sold,
			Revenue:  decimal.NewFromFloat(row.Revenue).Round(2),
		})
	}
	return export, nil
}

func (s *PBStatsStore) ExportTickets(_ context.Context) ([]TicketExportRow, error) {
	var rows []struct {
		TicketID   string `db:"ticket_id"`
		EventTitle string `db:"event_title"`
		BuyerName  string `db:"buyer_name"`
		Phone      string `db:"phone"`
		ChatUserID string `db:"chat_user_id"`
		IssuedAt   string `db:"issued_at"`
		QRPayload  string `db:"qr_payload"`
	}
	err := s.app.DB().NewQuery(`
		SELECT t.id AS ticket_id, e.title AS event_title,
		       o.buyer_name AS buyer_name, o.phone AS phone,
		       o.chat_user_id AS chat_user_id, t.created AS issued_at,
		       t.qr_payload AS qr_payload
		FROM tickets t
		JOIN orders o ON o.id = t."order"
		JOIN events e ON e.id = t.event
		ORDER BY t.created
	`).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store: export tickets: %w", err)
	}

	export := make([]TicketExportRow, 0, len(rows))
	for _, row := range rows {
		export = append(export, TicketExportRow(row))
	}
	return export, nil
}
