package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YossiGold99/PartyFlow-V2/internal/payment"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/models"
)

type fakeCatalog struct {
	events map[string]*models.Event
}

func (c *fakeCatalog) GetEvent(_ context.Context, id string) (*models.Event, error) {
	event, ok := c.events[id]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	clone := *event
	return &clone, nil
}

func (c *fakeCatalog) ListOnSale(_ context.Context) ([]models.Event, error) {
	var out []models.Event
	for _, event := range c.events {
		if event.OnSale() {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (c *fakeCatalog) ListPage(_ context.Context, _ string, _, _ int, _ bool) ([]models.Event, int, error) {
	return nil, 0, nil
}

func (c *fakeCatalog) StartingOn(_ context.Context, day time.Time) ([]models.Event, error) {
	var out []models.Event
	for _, event := range c.events {
		if event.OnSale() && event.StartAt.Format("2006-01-02") == day.Format("2006-01-02") {
			out = append(out, *event)
		}
	}
	return out, nil
}

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	seq    int

	buyers map[string][]models.Buyer // eventID -> snapshot override
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func (s *fakeOrderStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	order.ID = fmt.Sprintf("ord%d", s.seq)
	order.CreatedAt = time.Now()
	clone := *order
	s.orders[order.ID] = &clone
	return nil
}

func (s *fakeOrderStore) Get(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, status.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *fakeOrderStore) GetBySessionRef(_ context.Context, sessionRef string) (*models.Order, error) {
	return s.findBy(func(o *models.Order) bool { return o.SessionRef == sessionRef })
}

func (s *fakeOrderStore) GetByHoldToken(_ context.Context, holdToken string) (*models.Order, error) {
	return s.findBy(func(o *models.Order) bool { return o.HoldToken == holdToken })
}

func (s *fakeOrderStore) findBy(match func(*models.Order) bool) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if match(order) {
			clone := *order
			return &clone, nil
		}
	}
	return nil, status.ErrOrderNotFound
}

func (s *fakeOrderStore) Update(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return status.ErrOrderNotFound
	}
	clone := *order
	s.orders[order.ID] = &clone
	return nil
}

func (s *fakeOrderStore) PaidBuyers(_ context.Context, eventID string) ([]models.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buyers != nil {
		return s.buyers[eventID], nil
	}

	seen := map[string]bool{}
	var buyers []models.Buyer
	for _, order := range s.orders {
		if order.EventID == eventID && order.Status == models.OrderStatusPaid && !seen[order.ChatUserID] {
			seen[order.ChatUserID] = true
			buyers = append(buyers, models.Buyer{ChatUserID: order.ChatUserID, Name: order.BuyerName})
		}
	}
	return buyers, nil
}

type fakeTicketStore struct {
	mu      sync.Mutex
	tickets []*models.Ticket
	seq     int
}

func (s *fakeTicketStore) CreateBatch(_ context.Context, tickets []*models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range tickets {
		s.seq++
		ticket.ID = fmt.Sprintf("tkt%d", s.seq)
		ticket.IssuedAt = time.Now()
		clone := *ticket
		s.tickets = append(s.tickets, &clone)
	}
	return nil
}

func (s *fakeTicketStore) ListByBuyer(_ context.Context, _ string) ([]models.TicketView, error) {
	return nil, nil
}

func (s *fakeTicketStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

type fakeProvider struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req *payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, errors.New("provider unavailable")
	}
	return &payment.CheckoutSession{
		Reference: "cs_" + req.OrderID,
		URL:       "https://pay.example.com/" + req.OrderID,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}, nil
}

func (p *fakeProvider) Close(_ context.Context) error { return nil }

type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string // chatUserID -> texts
	tickets  map[string][]string // chatUserID -> qr payloads
	failFor  map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		messages: make(map[string][]string),
		tickets:  make(map[string][]string),
		failFor:  make(map[string]bool),
	}
}

func (n *fakeNotifier) SendMessage(_ context.Context, chatUserID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[chatUserID] {
		return errors.New("recipient unreachable")
	}
	n.messages[chatUserID] = append(n.messages[chatUserID], text)
	return nil
}

func (n *fakeNotifier) SendTicket(_ context.Context, chatUserID, _, qrPayload string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[chatUserID] {
		return errors.New("recipient unreachable")
	}
	n.tickets[chatUserID] = append(n.tickets[chatUserID], qrPayload)
	return nil
}

func (n *fakeNotifier) Close(_ context.Context) error { return nil }

func (n *fakeNotifier) sentMessages(chatUserID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages[chatUserID])
}

func (n *fakeNotifier) sentTickets(chatUserID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tickets[chatUserID])
}
