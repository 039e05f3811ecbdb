// Package handlers exposes the HTTP surface: the storefront endpoints
// the chat bot calls, the payment webhook, and the admin API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/YossiGold99/PartyFlow-V2/internal/catalog"
	"github.com/YossiGold99/PartyFlow-V2/internal/ledger"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/internal/store"
	"github.com/YossiGold99/PartyFlow-V2/models"
	"github.com/YossiGold99/PartyFlow-V2/services"
)

type StorefrontHandler struct {
	catalog      catalog.Catalog
	ledger       ledger.Ledger
	tickets      store.TicketStore
	orderService *services.OrderService
}

func NewStorefrontHandler(cat catalog.Catalog, ldg ledger.Ledger, tickets store.TicketStore, orderService *services.OrderService) *StorefrontHandler {
	return &StorefrontHandler{
		catalog:      cat,
		ledger:       ldg,
		tickets:      tickets,
		orderService: orderService,
	}
}

// ListEvents - storefront catalog with live availability
func (h *StorefrontHandler) ListEvents(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	events, err := h.catalog.ListOnSale(ctx)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list events", err)
	}

	summaries := make([]models.EventSummary, 0, len(events))
	for _, event := range events {
		available, err := h.ledger.AvailableCount(ctx, event.ID)
		if err != nil {
			slog.Warn("availability lookup failed, serving zero", "eventID", event.ID, "error", err)
			available = 0
		}
		sold := event.Capacity - available
		percent := 0
		if event.Capacity > 0 {
			percent = sold * 100 / event.Capacity
		}
		summaries = append(summaries, models.EventSummary{
			Event:     event,
			Sold:      sold,
			Available: available,
			Percent:   percent,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{"events": summaries})
}

// CreateOrder - reserve tickets and open a checkout session
func (h *StorefrontHandler) CreateOrder(e *core.RequestEvent) error {
	var req services.CreateOrderRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ChatUserID == "" {
		return apis.NewBadRequestError("chat_user_id required", nil)
	}

	order, session, err := h.orderService.CreateOrder(e.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrInvalidQuantity):
			return apis.NewBadRequestError("Invalid quantity", err)
		case errors.Is(err, status.ErrInvalidPhone):
			return apis.NewBadRequestError("Invalid phone number", err)
		case errors.Is(err, status.ErrEventNotFound):
			return apis.NewNotFoundError("Event not found", err)
		case errors.Is(err, status.ErrEventNotOnSale):
			return apis.NewBadRequestError("Event is not on sale", err)
		case errors.Is(err, status.ErrSoldOut):
			// 409: the request was well-formed, the tickets just ran out.
			return apis.NewApiError(http.StatusConflict, "Sold out", err)
		default:
			return apis.NewApiError(http.StatusInternalServerError, "Failed to create order", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"order":        order,
		"checkout_url": session.URL,
		"expires_at":   session.ExpiresAt,
	})
}

// CancelOrder - buyer-initiated cancellation of an unpaid order
func (h *StorefrontHandler) CancelOrder(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")

	err := h.orderService.Cancel(e.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrOrderNotFound):
			return apis.NewNotFoundError("Order not found", err)
		case errors.Is(err, status.ErrInvalidTransition):
			return apis.NewApiError(http.StatusConflict, "Order already closed", err)
		default:
			return apis.NewApiError(http.StatusInternalServerError, "Failed to cancel order", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Order cancelled"})
}

// MyTickets - a buyer's issued tickets with event details
func (h *StorefrontHandler) MyTickets(e *core.RequestEvent) error {
	chatUserID := e.Request.URL.Query().Get("chat_user_id")
	if chatUserID == "" {
		return apis.NewBadRequestError("chat_user_id required", nil)
	}

	tickets, err := h.tickets.ListByBuyer(e.Request.Context(), chatUserID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list tickets", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}
