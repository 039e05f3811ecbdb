package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YossiGold99/PartyFlow-V2/config"
	"github.com/YossiGold99/PartyFlow-V2/internal/catalog"
	"github.com/YossiGold99/PartyFlow-V2/models"
)

// Broadcaster is the slice of BroadcastService the reminder sweep needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, eventID, message string) (string, error)
}

// ReminderService sends day-of reminders to ticket holders. The sweep is
// idempotent per event per calendar day: a marker is claimed in Redis
// with SETNX before any message goes out, so overlapping runs (restarts,
// a second replica, a manual trigger after the cron) cannot double-send.
type ReminderService struct {
	config      *config.Config
	catalog     catalog.Catalog
	broadcaster Broadcaster
	redis       *redis.Client
}

func NewReminderService(cfg *config.Config, cat catalog.Catalog, broadcaster Broadcaster, redisClient *redis.Client) *ReminderService {
	return &ReminderService{
		config:      cfg,
		catalog:     cat,
		broadcaster: broadcaster,
		redis:       redisClient,
	}
}

// RunSweep reminds buyers of every published event starting on the given
// day. Returns the number of events for which a reminder went out.
func (s *ReminderService) RunSweep(ctx context.Context, day time.Time) (int, error) {
	events, err := s.catalog.StartingOn(ctx, day)
	if err != nil {
		return 0, err
	}

	reminded := 0
	for _, event := range events {
		claimed, err := s.claimMarker(ctx, event.ID, day)
		if err != nil {
			return reminded, err
		}
		if !claimed {
			slog.Info("reminder already sent today, skipping", "eventID", event.ID)
			continue
		}

		jobID, err := s.broadcaster.Broadcast(ctx, event.ID, reminderMessage(&event))
		if err != nil {
			// The marker stays claimed: better one missed reminder than a
			// double-send storm on a flapping error.
			slog.Error("reminder broadcast failed", "eventID", event.ID, "error", err)
			continue
		}
		slog.Info("reminder broadcast queued", "eventID", event.ID, "jobID", jobID)
		reminded++
	}
	return reminded, nil
}

func (s *ReminderService) claimMarker(ctx context.Context, eventID string, day time.Time) (bool, error) {
	key := fmt.Sprintf("reminder:sent:%s:%s", eventID, day.Format("2006-01-02"))
	claimed, err := s.redis.SetNX(ctx, key, 1, s.config.ReminderMarkerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("reminder: claim marker %s: %w", key, err)
	}
	return claimed, nil
}

func reminderMessage(event *models.Event) string {
	return fmt.Sprintf("Reminder: %s starts today at %s, %s. See you there!",
		event.Title, event.StartAt.Format("15:04"), event.Venue)
}
