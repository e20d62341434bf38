package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/insider-one/mailcourier/internal/config"
	"github.com/insider-one/mailcourier/internal/domain"
)

// Dispatcher performs a single dispatch attempt against one provider
type Dispatcher interface {
	Dispatch(ctx context.Context, provider *domain.Provider, req *domain.SendRequest) domain.DispatchOutcome
}

// MetricsRecorder receives dispatch measurements for monitoring
type MetricsRecorder interface {
	RecordDispatch(provider string, outcome domain.OutcomeStatus, duration time.Duration)
	RecordQuotaExhausted(provider string)
}

// Processor drains the dispatch queue and drives each delivery to a terminal
// status
type Processor struct {
	deliveryRepo domain.DeliveryRepository
	providerRepo domain.ProviderRepository
	queue        domain.Queue
	dispatcher   Dispatcher
	logger       *slog.Logger
	retryConfig  config.RetryConfig
	workerConfig config.WorkerConfig

	statusBroadcast func(delivery *domain.Delivery)
	metrics         MetricsRecorder

	mu         sync.Mutex
	running    bool
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

// NewProcessor creates a new Processor
func NewProcessor(
	deliveryRepo domain.DeliveryRepository,
	providerRepo domain.ProviderRepository,
	queue domain.Queue,
	dispatcher Dispatcher,
	logger *slog.Logger,
	retryConfig config.RetryConfig,
	workerConfig config.WorkerConfig,
) *Processor {
	return &Processor{
		deliveryRepo: deliveryRepo,
		providerRepo: providerRepo,
		queue:        queue,
		dispatcher:   dispatcher,
		logger:       logger,
		retryConfig:  retryConfig,
		workerConfig: workerConfig,
	}
}

// SetStatusBroadcast sets the function to broadcast delivery status updates
func (p *Processor) SetStatusBroadcast(fn func(delivery *domain.Delivery)) {
	p.statusBroadcast = fn
}

// SetMetricsRecorder sets the dispatch metrics sink
func (p *Processor) SetMetricsRecorder(m MetricsRecorder) {
	p.metrics = m
}

// Start starts the worker pool
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	ctx, p.cancelFunc = context.WithCancel(ctx)

	for i := 0; i < p.workerConfig.Count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("processor started", "workers", p.workerConfig.Count)

	return nil
}

// Stop stops the worker pool
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	if p.cancelFunc != nil {
		p.cancelFunc()
	}

	// Wait for all workers to finish
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("processor stopped gracefully")
	case <-time.After(30 * time.Second):
		p.logger.Warn("processor stop timed out")
	}
}

// worker is the main worker loop
func (p *Processor) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", workerID)

	logger.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		default:
			if err := p.processNext(ctx, logger); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Error("failed to process dispatch job", "error", err)
			}
		}
	}
}

// processNext claims the next due job and processes its delivery
func (p *Processor) processNext(ctx context.Context, logger *slog.Logger) error {
	job, err := p.queue.Dequeue(ctx)
	if err != nil {
		return err
	}

	if job == nil {
		// Nothing due, wait a bit before checking again
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return nil
		}
	}

	delivery, err := p.deliveryRepo.GetByID(ctx, job.DeliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("delivery not found", "delivery_id", job.DeliveryID)
			return nil
		}
		return err
	}

	// Only queued deliveries are dispatched; anything else was cancelled or
	// settled while the job sat in the queue.
	if delivery.Status != domain.DeliveryQueued {
		return nil
	}

	return p.processDelivery(ctx, delivery, job, logger)
}

// processDelivery runs one dispatch attempt, failing over between providers
// when a daily quota is spent.
func (p *Processor) processDelivery(ctx context.Context, delivery *domain.Delivery, job *domain.DispatchJob, logger *slog.Logger) error {
	logger = logger.With("delivery_id", delivery.ID)

	candidates, err := p.candidates(ctx, job)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The pinned provider is gone; no retry can bring it back.
			delivery.MarkAsFailed("assigned provider no longer exists")
			if updateErr := p.deliveryRepo.Update(ctx, delivery); updateErr != nil {
				return updateErr
			}
			p.broadcastStatus(delivery)
			logger.Error("delivery failed", "error", "assigned provider no longer exists")
			return nil
		}
		return err
	}

	if len(candidates) == 0 {
		return p.handleRetry(ctx, delivery, job, "no active provider available", logger)
	}

	delivery.MarkAsSending(candidates[0].ID)
	if err := p.deliveryRepo.Update(ctx, delivery); err != nil {
		return err
	}
	p.broadcastStatus(delivery)

	var outcome domain.DispatchOutcome
	for i, provider := range candidates {
		if i > 0 {
			logger.Info("failing over to next provider", "provider", provider.Name)
			delivery.ProviderID = &provider.ID
		}

		start := time.Now()
		outcome = p.dispatcher.Dispatch(ctx, provider, &delivery.Request)
		p.recordDispatch(provider.Name, outcome.Status, time.Since(start))

		if outcome.Status != domain.OutcomeQuotaExhausted {
			break
		}
		p.recordQuotaExhausted(provider.Name)
	}

	// The attempt may have consumed quota; its result must be recorded even
	// when shutdown cancelled the context mid-flight.
	settleCtx := context.WithoutCancel(ctx)

	switch outcome.Status {
	case domain.OutcomeSent:
		delivery.MarkAsSent(outcome.ProviderMessageID, outcome.HTTPStatus)
		if err := p.deliveryRepo.Update(settleCtx, delivery); err != nil {
			return err
		}
		p.broadcastStatus(delivery)
		logger.Info("delivery sent",
			"provider_message_id", outcome.ProviderMessageID,
			"http_status", outcome.HTTPStatus,
		)
		return nil

	case domain.OutcomeRejected:
		delivery.MarkAsRejected(outcome.HTTPStatus, outcome.ResponseBody)
		if err := p.deliveryRepo.Update(settleCtx, delivery); err != nil {
			return err
		}
		p.broadcastStatus(delivery)
		logger.Warn("delivery rejected by provider",
			"http_status", outcome.HTTPStatus,
		)
		return nil

	case domain.OutcomeConfigError:
		delivery.MarkAsFailed(fmt.Sprintf("provider configuration error (%s): %s", outcome.Field, outcome.Reason))
		if err := p.deliveryRepo.Update(settleCtx, delivery); err != nil {
			return err
		}
		p.broadcastStatus(delivery)
		logger.Error("delivery failed permanently",
			"field", outcome.Field,
			"error", outcome.Reason,
		)
		return nil

	case domain.OutcomeQuotaExhausted:
		return p.handleRetry(settleCtx, delivery, job, "all providers exhausted their daily quota", logger)

	default:
		return p.handleRetry(settleCtx, delivery, job, outcome.Reason, logger)
	}
}

// candidates returns the providers eligible for the job: the pinned provider
// when set, otherwise all active providers in registration order.
func (p *Processor) candidates(ctx context.Context, job *domain.DispatchJob) ([]*domain.Provider, error) {
	if job.ProviderID != nil {
		provider, err := p.providerRepo.GetByID(ctx, *job.ProviderID)
		if err != nil {
			return nil, err
		}
		return []*domain.Provider{provider}, nil
	}
	return p.providerRepo.ListActive(ctx)
}

// handleRetry requeues the delivery with backoff, or fails it once the retry
// budget is spent.
func (p *Processor) handleRetry(ctx context.Context, delivery *domain.Delivery, job *domain.DispatchJob, reason string, logger *slog.Logger) error {
	attempt := delivery.Attempts
	if attempt < job.Attempt {
		attempt = job.Attempt
	}

	if attempt >= p.retryConfig.MaxCount {
		delivery.MarkAsFailed(fmt.Sprintf("max retries exceeded: %s", reason))
		if err := p.deliveryRepo.Update(ctx, delivery); err != nil {
			return err
		}
		p.broadcastStatus(delivery)
		logger.Error("delivery failed after max retries",
			"attempts", attempt,
			"error", reason,
		)
		return nil
	}

	delay := p.calculateBackoff(attempt)

	delivery.MarkAsQueued()
	if err := p.deliveryRepo.Update(ctx, delivery); err != nil {
		return err
	}
	p.broadcastStatus(delivery)

	logger.Warn("delivery will be retried",
		"attempt", attempt,
		"delay", delay,
		"error", reason,
	)

	requeue := &domain.DispatchJob{
		DeliveryID: delivery.ID,
		ProviderID: job.ProviderID,
		Attempt:    attempt + 1,
		EnqueuedAt: time.Now().UTC(),
	}

	return p.queue.EnqueueAfter(ctx, requeue, delay)
}

// calculateBackoff calculates exponential backoff delay
func (p *Processor) calculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Exponential backoff: baseDelay * 2^(attempt-1)
	multiplier := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(p.retryConfig.BaseDelay) * multiplier)

	// Cap at 5 minutes
	maxDelay := 5 * time.Minute
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// broadcastStatus broadcasts a delivery update via WebSocket
func (p *Processor) broadcastStatus(delivery *domain.Delivery) {
	if p.statusBroadcast != nil {
		p.statusBroadcast(delivery)
	}
}

func (p *Processor) recordDispatch(provider string, outcome domain.OutcomeStatus, duration time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordDispatch(provider, outcome, duration)
	}
}

func (p *Processor) recordQuotaExhausted(provider string) {
	if p.metrics != nil {
		p.metrics.RecordQuotaExhausted(provider)
	}
}
