package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/YossiGold99/PartyFlow-V2/config"
	"github.com/YossiGold99/PartyFlow-V2/internal/catalog"
	"github.com/YossiGold99/PartyFlow-V2/internal/ledger"
	"github.com/YossiGold99/PartyFlow-V2/internal/notify"
	"github.com/YossiGold99/PartyFlow-V2/internal/payment"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/internal/store"
	"github.com/YossiGold99/PartyFlow-V2/models"
	"github.com/YossiGold99/PartyFlow-V2/monitoring"
	"github.com/YossiGold99/PartyFlow-V2/utils"
)

// OrderService owns the order lifecycle: it is the only code that moves
// an order between states, and it keeps order state and ledger state in
// step (hold confirmed iff order paid, hold released iff order reached
// failed/expired/cancelled).
type OrderService struct {
	config   *config.Config
	catalog  catalog.Catalog
	orders   store.OrderStore
	tickets  store.TicketStore
	ledger   ledger.Ledger
	provider payment.Provider
	notifier notify.Notifier
	breaker  *utils.CircuitBreaker

	// locks serializes transitions per order id, so concurrent webhook
	// retries and the expiry sweep cannot interleave on the same order.
	locks *keyedMutex
}

func NewOrderService(
	cfg *config.Config,
	cat catalog.Catalog,
	orders store.OrderStore,
	tickets store.TicketStore,
	ldg ledger.Ledger,
	provider payment.Provider,
	notifier notify.Notifier,
) *OrderService {
	return &OrderService{
		config:   cfg,
		catalog:  cat,
		orders:   orders,
		tickets:  tickets,
		ledger:   ldg,
		provider: provider,
		notifier: notifier,
		breaker:  utils.NewCircuitBreaker("payment-provider"),
		locks:    newKeyedMutex(),
	}
}

type CreateOrderRequest struct {
	EventID    string `json:"event_id"`
	ChatUserID string `json:"chat_user_id"`
	BuyerName  string `json:"buyer_name"`
	Phone      string `json:"phone"`
	Quantity   int    `json:"quantity"`
}

// CreateOrder reserves tickets and opens a checkout session. The hold is
// taken before the order row exists, so the capacity check and the
// reservation are a single atomic step; everything after that is
// compensated on failure.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, *payment.CheckoutSession, error) {
	if req.Quantity < 1 || req.Quantity > s.config.MaxOrderQuantity {
		return nil, nil, status.ErrInvalidQuantity
	}

	phone, err := s.normalizePhone(req.Phone)
	if err != nil {
		return nil, nil, err
	}

	event, err := s.catalog.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, nil, err
	}
	if !event.OnSale() {
		return nil, nil, status.ErrEventNotOnSale
	}

	hold, err := s.ledger.TryHold(ctx, event.ID, req.Quantity)
	if err != nil {
		return nil, nil, err
	}

	order := &models.Order{
		EventID:    event.ID,
		ChatUserID: req.ChatUserID,
		BuyerName:  req.BuyerName,
		Phone:      phone,
		Quantity:   req.Quantity,
		UnitPrice:  event.Price,
		HoldToken:  hold.Token,
		Status:     models.OrderStatusPendingPayment,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseHold(ctx, hold.Token)
		return nil, nil, err
	}
	monitoring.TrackOrderCreated(event.ID)

	session, err := s.openCheckout(ctx, order, event)
	if err != nil {
		slog.Error("checkout session failed, rolling back order",
			"orderID", order.ID, "eventID", event.ID, "error", err)
		s.releaseHold(ctx, hold.Token)
		if ferr := s.transition(ctx, order, models.OrderStatusFailed); ferr != nil {
			slog.Error("failed to fail order after checkout error", "orderID", order.ID, "error", ferr)
		}
		return nil, nil, err
	}

	order.SessionRef = session.Reference
	if err := s.orders.Update(ctx, order); err != nil {
		return nil, nil, err
	}

	return order, session, nil
}

func (s *OrderService) openCheckout(ctx context.Context, order *models.Order, event *models.Event) (*payment.CheckoutSession, error) {
	started := time.Now()
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.provider.CreateCheckoutSession(ctx, &payment.CheckoutRequest{
			OrderID:    order.ID,
			EventTitle: event.Title,
			UnitPrice:  order.UnitPrice,
			Currency:   s.config.Currency,
			Quantity:   order.Quantity,
		})
	})
	if err != nil {
		return nil, err
	}
	monitoring.TrackCheckoutDuration(time.Since(started))
	return result.(*payment.CheckoutSession), nil
}

// MarkPaid confirms the order's hold and issues tickets. Safe to call
// repeatedly: a paid order stays paid. If the hold lapsed before payment
// arrived, the money was taken for seats we no longer have, so the order
// is flagged for refund instead of issuing tickets.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string) error {
	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status.Terminal() {
		if order.Status == models.OrderStatusPaid {
			return nil
		}
		// Payment landed after the order already closed.
		return s.flagForRefund(ctx, order)
	}

	if err := s.ledger.Confirm(ctx, order.HoldToken); err != nil {
		if errors.Is(err, status.ErrHoldNotActive) || errors.Is(err, status.ErrHoldNotFound) {
			if terr := s.transition(ctx, order, models.OrderStatusFailed); terr != nil {
				return terr
			}
			return s.flagForRefund(ctx, order)
		}
		return err
	}

	now := time.Now().UTC()
	order.PaidAt = &now
	if err := s.transition(ctx, order, models.OrderStatusPaid); err != nil {
		return err
	}

	tickets, err := s.issueTickets(ctx, order)
	if err != nil {
		slog.Error("paid order but ticket issuance failed", "orderID", order.ID, "error", err)
		return err
	}

	s.notifyTickets(ctx, order, tickets)
	return nil
}

// MarkFailed closes an unpaid order and returns its seats to the pool.
func (s *OrderService) MarkFailed(ctx context.Context, orderID string) error {
	return s.close(ctx, orderID, models.OrderStatusFailed)
}

// MarkExpired closes an order whose checkout session or hold timed out.
func (s *OrderService) MarkExpired(ctx context.Context, orderID string) error {
	return s.close(ctx, orderID, models.OrderStatusExpired)
}

// Cancel closes an order at the buyer's request.
func (s *OrderService) Cancel(ctx context.Context, orderID string) error {
	return s.close(ctx, orderID, models.OrderStatusCancelled)
}

func (s *OrderService) close(ctx context.Context, orderID string, to models.OrderStatus) error {
	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == to {
		return nil
	}
	if order.Status.Terminal() {
		return status.ErrInvalidTransition
	}

	s.releaseHold(ctx, order.HoldToken)
	return s.transition(ctx, order, to)
}

// ExpireSweep runs one pass of hold expiry: the ledger reports holds that
// just lapsed, and each owning order is moved to expired. Returns the
// number of orders expired.
func (s *OrderService) ExpireSweep(ctx context.Context) (int, error) {
	expired, err := s.ledger.Sweep(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, hold := range expired {
		order, err := s.orders.GetByHoldToken(ctx, hold.Token)
		if err != nil {
			if errors.Is(err, status.ErrOrderNotFound) {
				continue
			}
			return count, err
		}
		if err := s.MarkExpired(ctx, order.ID); err != nil {
			if errors.Is(err, status.ErrInvalidTransition) {
				continue
			}
			return count, err
		}
		count++
		s.notify(ctx, order.ChatUserID,
			fmt.Sprintf("Your reservation for order %s expired. The tickets are back on sale.", order.ID))
	}
	return count, nil
}

// RunExpiryLoop drives ExpireSweep on a ticker until ctx is cancelled.
func (s *OrderService) RunExpiryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.HoldSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ExpireSweep(ctx); err != nil {
				slog.Error("hold expiry sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("expired lapsed orders", "count", n)
			}
		}
	}
}

func (s *OrderService) transition(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	from := order.Status
	order.Status = to
	if err := s.orders.Update(ctx, order); err != nil {
		order.Status = from
		return err
	}
	monitoring.TrackTransition(string(from), string(to))
	return nil
}

func (s *OrderService) flagForRefund(ctx context.Context, order *models.Order) error {
	if order.NeedsRefund {
		return nil
	}
	order.NeedsRefund = true
	if err := s.orders.Update(ctx, order); err != nil {
		return err
	}
	monitoring.TrackCompensationRequired()
	slog.Error("payment received for lapsed reservation, refund required",
		"orderID", order.ID, "eventID", order.EventID, "sessionRef", order.SessionRef)
	s.notify(ctx, order.ChatUserID,
		fmt.Sprintf("We received your payment for order %s, but the reservation had already expired. A refund is on its way.", order.ID))
	return nil
}

func (s *OrderService) issueTickets(ctx context.Context, order *models.Order) ([]*models.Ticket, error) {
	event, err := s.catalog.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, err
	}

	tickets := make([]*models.Ticket, 0, order.Quantity)
	for i := 0; i < order.Quantity; i++ {
		serial, err := utils.GenerateCode(12)
		if err != nil {
			return nil, fmt.Errorf("generate ticket serial: %w", err)
		}
		tickets = append(tickets, &models.Ticket{
			OrderID:   order.ID,
			EventID:   order.EventID,
			QRPayload: models.TicketQRPayload(serial, event.Title, order.BuyerName),
		})
	}
	if err := s.tickets.CreateBatch(ctx, tickets); err != nil {
		return nil, err
	}
	monitoring.TrackTicketsIssued(order.EventID, len(tickets))
	return tickets, nil
}

func (s *OrderService) notifyTickets(ctx context.Context, order *models.Order, tickets []*models.Ticket) {
	for i, ticket := range tickets {
		caption := fmt.Sprintf("Ticket %d/%d for order %s", i+1, len(tickets), order.ID)
		if err := s.notifier.SendTicket(ctx, order.ChatUserID, caption, ticket.QRPayload); err != nil {
			slog.Error("ticket delivery failed", "orderID", order.ID, "ticketID", ticket.ID, "error", err)
		}
	}
}

func (s *OrderService) notify(ctx context.Context, chatUserID, text string) {
	if err := s.notifier.SendMessage(ctx, chatUserID, text); err != nil {
		slog.Error("notification failed", "chatUserID", chatUserID, "error", err)
	}
}

func (s *OrderService) releaseHold(ctx context.Context, token string) {
	if err := s.ledger.Release(ctx, token); err != nil {
		slog.Error("hold release failed", "token", token, "error", err)
	}
}

func (s *OrderService) normalizePhone(raw string) (string, error) {
	parsed, err := phonenumbers.Parse(raw, s.config.PhoneRegion)
	if err != nil {
		return "", status.ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", status.ErrInvalidPhone
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// keyedMutex hands out one mutex per key, dropping entries when the last
// holder releases.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
