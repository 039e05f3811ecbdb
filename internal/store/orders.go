// Package store persists orders and tickets in PocketBase collections.
// Services depend on the interfaces here; tests swap in fakes.
package store

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/models"
)

type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	GetBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error)
	GetByHoldToken(ctx context.Context, holdToken string) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error

	// PaidBuyers returns the distinct buyers holding at least one paid
	// order for the event: the broadcast recipient snapshot.
	PaidBuyers(ctx context.Context, eventID string) ([]models.Buyer, error)
}

type PBOrderStore struct {
	app core.App
}

func NewPBOrderStore(app core.App) *PBOrderStore {
	return &PBOrderStore{app: app}
}

func (s *PBOrderStore) Create(_ context.Context, order *models.Order) error {
	collection, err := s.app.FindCollectionByNameOrId("orders")
	if err != nil {
		return fmt.Errorf("store: orders collection: %w", err)
	}

	record := core.NewRecord(collection)
	applyOrder(record, order)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("store: create order: %w", err)
	}

	order.ID = record.Id
	order.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *PBOrderStore) Get(_ context.Context, id string) (*models.Order, error) {
	record, err := s.app.FindRecordById("orders", id)
	if err != nil {
		return nil, status.ErrOrderNotFound
	}
	return recordToOrder(record), nil
}

func (s *PBOrderStore) GetBySessionRef(_ context.Context, sessionRef string) (*models.Order, error) {
	return s.getByField("session_ref", sessionRef)
}

func (s *PBOrderStore) GetByHoldToken(_ context.Context, holdToken string) (*models.Order, error) {
	return s.getByField("hold_token", holdToken)
}

func (s *PBOrderStore) getByField(field, value string) (*models.Order, error) {
	record, err := s.app.FindFirstRecordByData("orders", field, value)
	if err != nil {
		return nil, status.ErrOrderNotFound
	}
	return recordToOrder(record), nil
}

func (s *PBOrderStore) Update(_ context.Context, order *models.Order) error {
	record, err := s.app.FindRecordById("orders", order.ID)
	if err != nil {
		return status.ErrOrderNotFound
	}
	applyOrder(record, order)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("store: update order %s: %w", order.ID, err)
	}
	return nil
}

func (s *PBOrderStore) PaidBuyers(_ context.Context, eventID string) ([]models.Buyer, error) {
	var rows []struct {
		ChatUserID string `db:"chat_user_id"`
		BuyerName  string `db:"buyer_name"`
	}
	err := s.app.DB().NewQuery(`
		SELECT DISTINCT chat_user_id, buyer_name
		FROM orders
		WHERE event = {:event} AND status = 'paid'
	`).Bind(dbx.Params{"event": eventID}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store: paid buyers for event %s: %w", eventID, err)
	}

	buyers := make([]models.Buyer, 0, len(rows))
	for _, row := range rows {
		buyers = append(buyers, models.Buyer{ChatUserID: row.ChatUserID, Name: row.BuyerName})
	}
	return buyers, nil
}

func applyOrder(record *core.Record, order *models.Order) {
	record.Set("event", order.EventID)
	record.Set("chat_user_id", order.ChatUserID)
	record.Set("buyer_name", order.BuyerName)
	record.Set("phone", order.Phone)
	record.Set("quantity", order.Quantity)
	record.Set("unit_price", order.UnitPrice.InexactFloat64())
	record.Set("hold_token", order.HoldToken)
	record.Set("session_ref", order.SessionRef)
	record.Set("status", string(order.Status))
	record.Set("needs_refund", order.NeedsRefund)
	if order.PaidAt != nil {
		paidAt, _ := types.ParseDateTime(*order.PaidAt)
		record.Set("paid_at", paidAt)
	}
}

func recordToOrder(record *core.Record) *models.Order {
	order := &models.Order{
		ID:          record.Id,
		EventID:     record.GetString("event"),
		ChatUserID:  record.GetString("chat_user_id"),
		BuyerName:   record.GetString("buyer_name"),
		Phone:       record.GetString("phone"),
		Quantity:    record.GetInt("quantity"),
		UnitPrice:   decimal.NewFromFloat(record.GetFloat("unit_price")),
		HoldToken:   record.GetString("hold_token"),
		SessionRef:  record.GetString("session_ref"),
		Status:      models.OrderStatus(record.GetString("status")),
		NeedsRefund: record.GetBool("needs_refund"),
		CreatedAt:   record.GetDateTime("created").Time(),
	}
	if paidAt := record.GetDateTime("paid_at"); !paidAt.IsZero() {
		t := paidAt.Time()
		order.PaidAt = &t
	}
	return order
}
