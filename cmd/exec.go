package cmd

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	"github.com/YossiGold99/PartyFlow-V2/config"
	"github.com/YossiGold99/PartyFlow-V2/handlers"
	"github.com/YossiGold99/PartyFlow-V2/internal/catalog"
	"github.com/YossiGold99/PartyFlow-V2/internal/ledger"
	"github.com/YossiGold99/PartyFlow-V2/internal/notify"
	"github.com/YossiGold99/PartyFlow-V2/internal/payment/stripe"
	"github.com/YossiGold99/PartyFlow-V2/internal/store"
	"github.com/YossiGold99/PartyFlow-V2/monitoring"
	"github.com/YossiGold99/PartyFlow-V2/security"
	"github.com/YossiGold99/PartyFlow-V2/services"
	"github.com/YossiGold99/PartyFlow-V2/utils"

	_ "github.com/YossiGold99/PartyFlow-V2/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Capacity ledger: Redis in any real deployment, in-memory when
	// running throwaway instances without infra.
	var ldg ledger.Ledger = ledger.NewRedisLedger(redisClient, cfg.HoldTTL)
	if cfg.Environment == "test" {
		ldg = ledger.NewMemoryLedger(cfg.HoldTTL)
	}

	notifier := buildNotifier(cfg)
	provider := stripe.New(&stripe.ClientConfig{
		SecretKey:  cfg.StripeSecretKey,
		SuccessURL: cfg.StripeSuccessURL,
		CancelURL:  cfg.StripeCancelURL,
	})

	// Initialize stores and services
	cat := catalog.NewPBCatalog(app)
	orders := store.NewPBOrderStore(app)
	tickets := store.NewPBTicketStore(app)
	stats := store.NewPBStatsStore(app)

	orderService := services.NewOrderService(cfg, cat, orders, tickets, ldg, provider, notifier)
	paymentService := services.NewPaymentService(orders, orderService)
	broadcastService := services.NewBroadcastService(cfg, orders, notifier)
	reminderService := services.NewReminderService(cfg, cat, broadcastService, redisClient)

	// Initialize handlers
	storefrontHandler := handlers.NewStorefrontHandler(cat, ldg, tickets, orderService)
	paymentHandler := handlers.NewPaymentHandler(cfg, paymentService)
	adminHandler := handlers.NewAdminHandler(app, cat, ldg, stats, broadcastService, reminderService)

	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Monitoring
	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
		monitoring.ServeMetrics(cfg.MetricsPort)
	}

	// Background hold expiry
	go orderService.RunExpiryLoop(ctx)

	// Day-of reminders
	app.Cron().MustAdd("eventReminders", cfg.ReminderCron, func() {
		if _, err := reminderService.RunSweep(context.Background(), time.Now().UTC()); err != nil {
			slog.Error("reminder cron failed", "error", err)
		}
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncCapacitiesToLedger(app, ldg)

		// Storefront endpoints (called by the chat bot relay)
		e.Router.GET("/api/v1/storefront/events", storefrontHandler.ListEvents)
		e.Router.POST("/api/v1/storefront/orders", storefrontHandler.CreateOrder).
			Bind(rateLimiter.CheckoutRateLimit())
		e.Router.POST("/api/v1/storefront/orders/{orderId}/cancel", storefrontHandler.CancelOrder)
		e.Router.GET("/api/v1/storefront/tickets", storefrontHandler.MyTickets)

		// Payment endpoints
		e.Router.POST("/api/v1/payments/stripe/webhook", paymentHandler.StripeWebhook)
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", paymentHandler.SimulateOutcome)
		}

		// Admin endpoints
		admin := e.Router.Group("/api/v1/admin")
		admin.Bind(apis.RequireSuperuserAuth())
		admin.GET("/dashboard", adminHandler.Dashboard)
		admin.GET("/events", adminHandler.ListEvents)
		admin.POST("/events/{eventId}/archive", adminHandler.ArchiveEvent)
		admin.POST("/events/{eventId}/restore", adminHandler.RestoreEvent)
		admin.POST("/events/{eventId}/broadcast", adminHandler.StartBroadcast)
		admin.GET("/broadcasts/{jobId}", adminHandler.BroadcastReport)
		admin.POST("/reminders/run", adminHandler.RunReminders)
		admin.GET("/exports/events.csv", adminHandler.ExportEvents)
		admin.GET("/exports/tickets.csv", adminHandler.ExportTickets)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupEventHooks(app, ldg)

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := broadcastService.Shutdown(shutdownCtx); err != nil {
			slog.Error("broadcast shutdown timed out", "error", err)
		}
		if err := notifier.Close(shutdownCtx); err != nil {
			slog.Error("notifier close failed", "error", err)
		}

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notifier == "telegram" {
		return notify.NewTelegramNotifier(&notify.TelegramConfig{
			APIBase: cfg.TelegramAPIBase,
			Token:   cfg.TelegramToken,
		})
	}
	return notify.NewPubNubNotifier(&notify.PubNubConfig{
		PublishKey:   cfg.PubNubPublishKey,
		SubscribeKey: cfg.PubNubSubscribeKey,
		SecretKey:    cfg.PubNubSecretKey,
		UserID:       cfg.PubNubUserID,
	})
}

// syncCapacitiesToLedger pushes every sellable event's capacity into the
// ledger on boot, so a fresh Redis (or a capacity edit made while the
// server was down) starts from the database's truth.
func syncCapacitiesToLedger(app core.App, ldg ledger.Ledger) {
	ctx := context.Background()

	var rows []struct {
		ID       string `db:"id"`
		Capacity int    `db:"capacity"`
	}
	if err := app.DB().NewQuery(
		"SELECT id, capacity FROM events WHERE status != 'archived'",
	).All(&rows); err != nil {
		log.Printf("Error fetching events for ledger sync: %v", err)
		return
	}

	for _, row := range rows {
		if err := ldg.SetCapacity(ctx, row.ID, row.Capacity); err != nil {
			slog.Error("Failed to sync event capacity to ledger",
				"eventID", row.ID, "error", err)
		}
	}
	log.Printf("Synced %d event capacities to ledger", len(rows))
}

func setupEventHooks(app core.App, ldg ledger.Ledger) {
	// Fires after a new event record is created through the admin UI or
	// API; the ledger must know the capacity before the first hold.
	app.OnRecordCreateRequest("events").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}

		eventID := e.Record.Id
		capacity := e.Record.GetInt("capacity")
		if err := ldg.SetCapacity(e.Request.Context(), eventID, capacity); err != nil {
			// Boot-time sync will repair this; don't fail the request.
			slog.Error("Failed to register capacity for new event",
				"eventID", eventID, "error", err)
			return nil
		}
		slog.Info("Registered event capacity", "eventID", eventID, "capacity", capacity)
		return nil
	})

	// Capacity edits flow through the same path. Reducing capacity below
	// what is already sold or held only stops further sales.
	app.OnRecordUpdateRequest("events").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}

		eventID := e.Record.Id
		capacity := e.Record.GetInt("capacity")
		if err := ldg.SetCapacity(e.Request.Context(), eventID, capacity); err != nil {
			slog.Error("Failed to update capacity in ledger",
				"eventID", eventID, "error", err)
			return nil
		}
		slog.Info("Updated event capacity", "eventID", eventID, "capacity", capacity)
		return nil
	})
}
