package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/YossiGold99/PartyFlow-V2/internal/catalog"
	"github.com/YossiGold99/PartyFlow-V2/internal/ledger"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/internal/store"
	"github.com/YossiGold99/PartyFlow-V2/models"
	"github.com/YossiGold99/PartyFlow-V2/services"
)

type AdminHandler struct {
	app       core.App
	catalog   catalog.Catalog
	ledger    ledger.Ledger
	stats     store.StatsStore
	broadcast *services.BroadcastService
	reminders *services.ReminderService
}

func NewAdminHandler(
	app core.App,
	cat catalog.Catalog,
	ldg ledger.Ledger,
	stats store.StatsStore,
	broadcast *services.BroadcastService,
	reminders *services.ReminderService,
) *AdminHandler {
	return &AdminHandler{
		app:       app,
		catalog:   cat,
		ledger:    ldg,
		stats:     stats,
		broadcast: broadcast,
		reminders: reminders,
	}
}

// Dashboard - headline revenue/sales numbers plus the top sellers
func (h *AdminHandler) Dashboard(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	stats, err := h.stats.Dashboard(ctx)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to compute stats", err)
	}
	top, err := h.stats.TopEvents(ctx, 5)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to rank events", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"stats":      stats,
		"top_events": top,
	})
}

// ListEvents - paginated, searchable admin event list
func (h *AdminHandler) ListEvents(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	archived, _ := strconv.ParseBool(query.Get("archived"))

	events, total, err := h.catalog.ListPage(e.Request.Context(), query.Get("q"), page, perPage, archived)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list events", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"page":   max(page, 1),
	})
}

// ArchiveEvent - hides an event from the storefront; history is kept
func (h *AdminHandler) ArchiveEvent(e *core.RequestEvent) error {
	return h.setEventStatus(e, models.EventStatusArchived)
}

// RestoreEvent - brings an archived event back as a draft
func (h *AdminHandler) RestoreEvent(e *core.RequestEvent) error {
	return h.setEventStatus(e, models.EventStatusDraft)
}

func (h *AdminHandler) setEventStatus(e *core.RequestEvent, to models.EventStatus) error {
	record, err := h.app.FindRecordById("events", e.Request.PathValue("eventId"))
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}

	record.Set("status", string(to))
	if err := h.app.Save(record); err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to update event", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"id": record.Id, "status": to})
}

// StartBroadcast - fan a message out to an event's paid buyers
func (h *AdminHandler) StartBroadcast(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	var req struct {
		Message string `json:"message"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Message == "" {
		return apis.NewBadRequestError("Message required", nil)
	}

	if _, err := h.catalog.GetEvent(e.Request.Context(), eventID); err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}

	jobID, err := h.broadcast.Broadcast(e.Request.Context(), eventID, req.Message)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to start broadcast", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"job_id": jobID})
}

// BroadcastReport - progress snapshot of a running or finished fan-out
func (h *AdminHandler) BroadcastReport(e *core.RequestEvent) error {
	report, err := h.broadcast.Report(e.Request.PathValue("jobId"))
	if err != nil {
		if errors.Is(err, status.ErrJobNotFound) {
			return apis.NewNotFoundError("Job not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to read report", err)
	}

	return e.JSON(http.StatusOK, report)
}

// RunReminders - manual trigger of today's reminder sweep. Safe to call
// after the cron already ran: the per-event markers make it a no-op.
func (h *AdminHandler) RunReminders(e *core.RequestEvent) error {
	count, err := h.reminders.RunSweep(e.Request.Context(), time.Now().UTC())
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Reminder sweep failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"reminded_events": count})
}

// ExportEvents - per-event sales summary as CSV
func (h *AdminHandler) ExportEvents(e *core.RequestEvent) error {
	rows, err := h.stats.ExportEvents(e.Request.Context())
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to export events", err)
	}

	return writeCSV(e, "events.csv",
		[]string{"event_id", "title", "start_at", "venue", "price", "capacity", "sold", "revenue"},
		len(rows), func(i int) []string {
			row := rows[i]
			return []string{
				row.EventID, row.Title, row.StartAt, row.Venue,
				row.Price.StringFixed(2), strconv.Itoa(row.Capacity),
				strconv.Itoa(row.Sold), row.Revenue.StringFixed(2),
			}
		})
}

// ExportTickets - the guest list as CSV
func (h *AdminHandler) ExportTickets(e *core.RequestEvent) error {
	rows, err := h.stats.ExportTickets(e.Request.Context())
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to export tickets", err)
	}

	return writeCSV(e, "tickets.csv",
		[]string{"ticket_id", "event", "buyer", "phone", "chat_user_id", "issued_at", "qr_payload"},
		len(rows), func(i int) []string {
			row := rows[i]
			return []string{
				row.TicketID, row.EventTitle, row.BuyerName, row.Phone,
				row.ChatUserID, row.IssuedAt, row.QRPayload,
			}
		})
}

func writeCSV(e *core.RequestEvent, filename string, header []string, n int, row func(int) []string) error {
	e.Response.Header().Set("Content-Type", "text/csv")
	e.Response.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	e.Response.WriteHeader(http.StatusOK)

	w := csv.NewWriter(e.Response)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
