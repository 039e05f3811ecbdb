// Package catalog is the read surface over event metadata. Capacity
// accounting lives in the ledger; the catalog only ever reads.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/models"
)

type Catalog interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)

	// ListOnSale returns published events for the storefront.
	ListOnSale(ctx context.Context) ([]models.Event, error)

	// ListPage returns one admin dashboard page, filtered by title
	// substring, plus the total number of matching events.
	ListPage(ctx context.Context, q string, page, perPage int, archived bool) ([]models.Event, int, error)

	// StartingOn returns published events whose start time falls on the
	// given calendar day, for the reminder sweep.
	StartingOn(ctx context.Context, day time.Time) ([]models.Event, error)
}

// PBCatalog reads the PocketBase "events" collection.
type PBCatalog struct {
	app core.App
}

func NewPBCatalog(app core.App) *PBCatalog {
	return &PBCatalog{app: app}
}

func (c *PBCatalog) GetEvent(_ context.Context, id string) (*models.Event, error) {
	record, err := c.app.FindRecordById("events", id)
	if err != nil {
		return nil, status.ErrEventNotFound
	}
	return recordToEvent(record), nil
}

func (c *PBCatalog) ListOnSale(_ context.Context) ([]models.Event, error) {
	records, err := c.app.FindRecordsByFilter(
		"events",
		"status = 'published'",
		"start_at",
		200,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: list on sale: %w", err)
	}
	return recordsToEvents(records), nil
}

func (c *PBCatalog) ListPage(_ context.Context, q string, page, perPage int, archived bool) ([]models.Event, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 5
	}

	state := "status != 'archived'"
	if archived {
		state = "status = 'archived'"
	}

	filter := state
	params := dbx.Params{}
	if q != "" {
		filter += " && title ~ {:q}"
		params["q"] = q
	}

	records, err := c.app.FindRecordsByFilter(
		"events",
		filter,
		"-start_at",
		perPage,
		(page-1)*perPage,
		params,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list page: %w", err)
	}

	total, err := c.countFiltered(q, archived)
	if err != nil {
		return nil, 0, err
	}

	return recordsToEvents(records), total, nil
}

func (c *PBCatalog) countFiltered(q string, archived bool) (int, error) {
	query := "SELECT COUNT(*) AS n FROM events WHERE status != 'archived'"
	if archived {
		query = "SELECT COUNT(*) AS n FROM events WHERE status = 'archived'"
	}
	params := dbx.Params{}
	if q != "" {
		query += " AND title LIKE {:q}"
		params["q"] = "%" + q + "%"
	}

	var row struct {
		N int `db:"n"`
	}
	if err := c.app.DB().NewQuery(query).Bind(params).One(&row); err != nil {
		return 0, fmt.Errorf("catalog: count events: %w", err)
	}
	return row.N, nil
}

func (c *PBCatalog) StartingOn(_ context.Context, day time.Time) ([]models.Event, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).UTC()
	dayEnd := dayStart.Add(24 * time.Hour)

	records, err := c.app.FindRecordsByFilter(
		"events",
		"status = 'published' && start_at >= {:from} && start_at < {:to}",
		"start_at",
		200,
		0,
		dbx.Params{
			"from": dayStart.Format("2006-01-02 15:04:05.000Z"),
			"to":   dayEnd.Format("2006-01-02 15:04:05.000Z"),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: events starting on %s: %w", day.Format("2006-01-02"), err)
	}
	return recordsToEvents(records), nil
}

func recordToEvent(record *core.Record) *models.Event {
	return &models.Event{
		ID:          record.Id,
		Title:       record.GetString("title"),
		Description: record.GetString("description"),
		Venue:       record.GetString("venue"),
		StartAt:     record.GetDateTime("start_at").Time(),
		Price:       decimal.NewFromFloat(record.GetFloat("price")),
		Capacity:    record.GetInt("capacity"),
		Status:      models.EventStatus(record.GetString("status")),
	}
}

func recordsToEvents(records []*core.Record) []models.Event {
	events := make([]models.Event, 0, len(records))
	for _, record := range records {
		events = append(events, *recordToEvent(record))
	}
	return events
}
