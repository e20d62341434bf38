package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/insider-one/mailcourier/internal/config"
	"github.com/insider-one/mailcourier/internal/domain"
)

// Executor implements domain.HTTPExecutor on net/http with a shared pooled
// transport. Response bodies are capped so a misbehaving provider cannot
// balloon memory.
type Executor struct {
	client  *http.Client
	maxBody int64
}

// NewExecutor creates a new Executor
func NewExecutor(cfg config.DispatchConfig) *Executor {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Executor{
		client:  &http.Client{Transport: transport},
		maxBody: cfg.MaxResponseBytes,
	}
}

// Execute sends the outbound request and returns the raw response. Deadlines
// and cancellation come from ctx; the dispatcher owns the per-attempt
// timeout.
func (e *Executor) Execute(ctx context.Context, req *domain.OutboundRequest) (*domain.HTTPResponse, error) {
	body, err := req.EncodedBody()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &domain.HTTPResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
