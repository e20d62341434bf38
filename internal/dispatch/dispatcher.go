package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/quota"
)

// Dispatcher drives one dispatch attempt: resolve the request, reserve a
// quota unit, execute, settle. One call produces exactly one outcome; retry
// policy belongs to the caller.
type Dispatcher struct {
	resolver *Resolver
	guard    *quota.Guard
	executor domain.HTTPExecutor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a new Dispatcher. timeout bounds each network
// attempt.
func NewDispatcher(resolver *Resolver, guard *quota.Guard, executor domain.HTTPExecutor, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		guard:    guard,
		executor: executor,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch performs a single attempt against the given provider.
//
// Quota accounting follows the attempt, not the acceptance: a reservation is
// committed whenever the network call was started (Sent, Rejected and
// transport failures mid-flight all consume a unit) and released when the
// attempt died before reaching the wire.
func (d *Dispatcher) Dispatch(ctx context.Context, provider *domain.Provider, req *domain.SendRequest) domain.DispatchOutcome {
	logger := d.logger.With(
		"provider_id", provider.ID,
		"provider", provider.Name,
	)

	if !provider.IsActive {
		return domain.ConfigErrorOutcome(domain.NewConfigError("is_active", "provider is not active"))
	}

	outbound, err := d.resolver.Resolve(provider, req)
	if err != nil {
		logger.Warn("dispatch resolution failed", "error", err)
		return domain.ConfigErrorOutcome(err)
	}

	reservation, err := d.guard.Reserve(ctx, provider.ID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExhausted) {
			logger.Info("daily quota exhausted")
			return domain.QuotaExhaustedOutcome()
		}
		logger.Error("quota reservation failed", "error", err)
		return domain.TransportErrorOutcome(fmt.Sprintf("quota store: %v", err))
	}

	if err := ctx.Err(); err != nil {
		// Nothing reached the wire, the unit goes back.
		d.release(ctx, reservation, logger)
		return domain.TransportErrorOutcome(fmt.Sprintf("cancelled before execution: %v", err))
	}

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.executor.Execute(execCtx, outbound)
	if err != nil {
		// The attempt reached the network; it counts against the quota even
		// when the response never arrived.
		d.commit(ctx, reservation, logger)
		logger.Warn("dispatch transport failure", "error", err)
		return domain.TransportErrorOutcome(err.Error())
	}

	d.commit(ctx, reservation, logger)

	if resp.Success() {
		messageID := extractMessageID(resp)
		logger.Info("dispatch sent",
			"http_status", resp.StatusCode,
			"provider_message_id", messageID,
		)
		return domain.SentOutcome(messageID, resp.StatusCode)
	}

	logger.Warn("dispatch rejected", "http_status", resp.StatusCode)
	return domain.RejectedOutcome(resp.StatusCode, string(resp.Body))
}

// commit settles the reservation even when the request context is already
// cancelled; the consumed unit must be recorded regardless.
func (d *Dispatcher) commit(ctx context.Context, res *quota.Reservation, logger *slog.Logger) {
	if err := d.guard.Commit(context.WithoutCancel(ctx), res); err != nil {
		logger.Error("quota commit failed", "error", err)
	}
}

func (d *Dispatcher) release(ctx context.Context, res *quota.Reservation, logger *slog.Logger) {
	if err := d.guard.Release(context.WithoutCancel(ctx), res); err != nil {
		logger.Error("quota release failed", "error", err)
	}
}

// messageIDKeys are the response body fields providers commonly return the
// message id in.
var messageIDKeys = []string{"id", "message_id", "messageId", "MessageID"}

func extractMessageID(resp *domain.HTTPResponse) string {
	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		for _, key := range messageIDKeys {
			if v, ok := body[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return resp.Header.Get("X-Message-Id")
}
