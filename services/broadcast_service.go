package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/YossiGold99/PartyFlow-V2/config"
	"github.com/YossiGold99/PartyFlow-V2/internal/notify"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/internal/store"
	"github.com/YossiGold99/PartyFlow-V2/models"
	"github.com/YossiGold99/PartyFlow-V2/monitoring"
	"github.com/YossiGold99/PartyFlow-V2/utils"
)

func newJobID() string {
	suffix, _ := utils.GenerateCode(6)
	return fmt.Sprintf("bcast_%d_%s", time.Now().Unix(), suffix)
}

// BroadcastService fans a message out to every paid buyer of an event
// through a bounded worker pool. One slow or failing recipient never
// blocks the rest; the send rate is throttled globally, not dropped.
type BroadcastService struct {
	config   *config.Config
	orders   store.OrderStore
	notifier notify.Notifier
	limiter  *rate.Limiter

	mu   sync.RWMutex
	jobs map[string]*broadcastJob

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

type broadcastJob struct {
	mu     sync.Mutex
	report models.BroadcastReport
}

func NewBroadcastService(cfg *config.Config, orders store.OrderStore, notifier notify.Notifier) *BroadcastService {
	baseCtx, stop := context.WithCancel(context.Background())
	return &BroadcastService{
		config:   cfg,
		orders:   orders,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(cfg.BroadcastSendRate), cfg.BroadcastBurst),
		jobs:     make(map[string]*broadcastJob),
		baseCtx:  baseCtx,
		stop:     stop,
	}
}

// Broadcast snapshots the event's paid buyers and starts delivering in
// the background. Buyers who pay after the snapshot are not included.
// Returns the job id for progress polling.
func (s *BroadcastService) Broadcast(ctx context.Context, eventID, message string) (string, error) {
	buyers, err := s.orders.PaidBuyers(ctx, eventID)
	if err != nil {
		return "", err
	}

	job := &broadcastJob{
		report: models.BroadcastReport{
			JobID:     newJobID(),
			EventID:   eventID,
			Status:    models.BroadcastRunning,
			Total:     len(buyers),
			Pending:   len(buyers),
			Outcomes:  make(map[string]models.RecipientOutcome, len(buyers)),
			StartedAt: time.Now().UTC(),
		},
	}
	for _, buyer := range buyers {
		job.report.Outcomes[buyer.ChatUserID] = models.RecipientPending
	}

	s.mu.Lock()
	s.jobs[job.report.JobID] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(job, buyers, message)

	slog.Info("broadcast started", "jobID", job.report.JobID, "eventID", eventID, "recipients", len(buyers))
	return job.report.JobID, nil
}

// Report returns a point-in-time copy of a job's progress.
func (s *BroadcastService) Report(jobID string) (*models.BroadcastReport, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, status.ErrJobNotFound
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	snapshot := job.report
	snapshot.Outcomes = make(map[string]models.RecipientOutcome, len(job.report.Outcomes))
	for id, outcome := range job.report.Outcomes {
		snapshot.Outcomes[id] = outcome
	}
	return &snapshot, nil
}

// Shutdown stops accepting work and waits for in-flight jobs to wind
// down. Recipients not yet attempted stay pending in their reports.
func (s *BroadcastService) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BroadcastService) run(job *broadcastJob, buyers []models.Buyer, message string) {
	defer s.wg.Done()

	workers := s.config.BroadcastWorkers
	if workers < 1 {
		workers = 1
	}

	queue := make(chan models.Buyer)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for buyer := range queue {
				s.deliver(job, buyer, message)
			}
		}()
	}

feed:
	for _, buyer := range buyers {
		select {
		case queue <- buyer:
		case <-s.baseCtx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	job.mu.Lock()
	job.report.Status = models.BroadcastCompleted
	now := time.Now().UTC()
	job.report.CompletedAt = &now
	sent, failed := job.report.Sent, job.report.Failed
	job.mu.Unlock()

	slog.Info("broadcast finished", "jobID", job.report.JobID, "sent", sent, "failed", failed)
}

func (s *BroadcastService) deliver(job *broadcastJob, buyer models.Buyer, message string) {
	if err := s.limiter.Wait(s.baseCtx); err != nil {
		// Shutting down; leave the recipient pending.
		return
	}

	err := s.notifier.SendMessage(s.baseCtx, buyer.ChatUserID, message)

	job.mu.Lock()
	defer job.mu.Unlock()
	job.report.Pending--
	if err != nil {
		job.report.Failed++
		job.report.Outcomes[buyer.ChatUserID] = models.RecipientFailed
		monitoring.TrackBroadcastSend("failed")
		slog.Error("broadcast delivery failed",
			"jobID", job.report.JobID, "chatUserID", buyer.ChatUserID, "error", err)
		return
	}
	job.report.Sent++
	job.report.Outcomes[buyer.ChatUserID] = models.RecipientSent
	monitoring.TrackBroadcastSend("sent")
}
