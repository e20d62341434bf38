package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/insider-one/mailcourier/internal/domain"
	"github.com/insider-one/mailcourier/internal/quota"
)

// MockExecutor is a mock implementation of domain.HTTPExecutor
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, req *domain.OutboundRequest) (*domain.HTTPResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HTTPResponse), args.Error(1)
}

func testProvider(dailyQuota int) *domain.Provider {
	return domain.NewProvider("resend-main", domain.KindResend,
		domain.Credentials{Key: "re_123"}, dailyQuota)
}

func usedUnits(t *testing.T, store *quota.MemoryStore, provider *domain.Provider) int {
	t.Helper()
	usage, err := store.Usage(context.Background(), provider.ID)
	require.NoError(t, err)
	return usage.Used
}

func TestDispatcher_Sent(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	provider := testProvider(100)
	store.Register(provider.ID, provider.DailyQuota)

	mockExecutor.On("Execute", mock.Anything, mock.AnythingOfType("*domain.OutboundRequest")).
		Return(&domain.HTTPResponse{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`{"id":"msg-123"}`),
		}, nil).Once()

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeSent, outcome.Status)
	assert.Equal(t, "msg-123", outcome.ProviderMessageID)
	assert.Equal(t, 200, outcome.HTTPStatus)
	assert.Equal(t, 1, usedUnits(t, store, provider))
	mockExecutor.AssertExpectations(t)
}

func TestDispatcher_SentMessageIDFromHeader(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	provider := testProvider(100)
	store.Register(provider.ID, provider.DailyQuota)

	mockExecutor.On("Execute", mock.Anything, mock.AnythingOfType("*domain.OutboundRequest")).
		Return(&domain.HTTPResponse{
			StatusCode: 202,
			Header:     http.Header{"X-Message-Id": []string{"hdr-9"}},
			Body:       []byte("accepted"),
		}, nil).Once()

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeSent, outcome.Status)
	assert.Equal(t, "hdr-9", outcome.ProviderMessageID)
	assert.Equal(t, 202, outcome.HTTPStatus)
}

func TestDispatcher_Rejected(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	provider := testProvider(100)
	store.Register(provider.ID, provider.DailyQuota)

	mockExecutor.On("Execute", mock.Anything, mock.AnythingOfType("*domain.OutboundRequest")).
		Return(&domain.HTTPResponse{
			StatusCode: 422,
			Header:     http.Header{},
			Body:       []byte(`{"error":"invalid recipient"}`),
		}, nil).Once()

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeRejected, outcome.Status)
	assert.Equal(t, 422, outcome.HTTPStatus)
	assert.Equal(t, `{"error":"invalid recipient"}`, outcome.ResponseBody)

	// A rejection still consumed one attempt against the daily quota.
	assert.Equal(t, 1, usedUnits(t, store, provider))
}

func TestDispatcher_InactiveProvider(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	provider := testProvider(100)
	provider.IsActive = false
	store.Register(provider.ID, provider.DailyQuota)

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeConfigError, outcome.Status)
	assert.Equal(t, "is_active", outcome.Field)
	assert.Equal(t, 0, usedUnits(t, store, provider))
	mockExecutor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestDispatcher_ConfigErrorSkipsQuota(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	// Custom kind without endpoint or template never resolves.
	provider := domain.NewProvider("broken", domain.KindCustom, domain.Credentials{}, 100)
	store.Register(provider.ID, provider.DailyQuota)

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeConfigError, outcome.Status)
	assert.Equal(t, "endpoint", outcome.Field)
	assert.NotEmpty(t, outcome.Reason)
	assert.Equal(t, 0, usedUnits(t, store, provider))
	mockExecutor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestDispatcher_QuotaExhausted(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	provider := testProvider(1)
	store.Register(provider.ID, provider.DailyQuota)

	mockExecutor.On("Execute", mock.Anything, mock.AnythingOfType("*domain.OutboundRequest")).
		Return(&domain.HTTPResponse{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`{"id":"msg-1"}`),
		}, nil).Once()

	first := dispatcher.Dispatch(ctx, provider, sampleRequest())
	assert.Equal(t, domain.OutcomeSent, first.Status)

	second := dispatcher.Dispatch(ctx, provider, sampleRequest())
	assert.Equal(t, domain.OutcomeQuotaExhausted, second.Status)

	assert.Equal(t, 1, usedUnits(t, store, provider))
	mockExecutor.AssertExpectations(t)
}

func TestDispatcher_QuotaStoreFailure(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	// Provider was never registered with the store.
	provider := testProvider(100)

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeTransportError, outcome.Status)
	assert.Contains(t, outcome.Reason, "quota store")
	mockExecutor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestDispatcher_TransportErrorConsumesQuota(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	provider := testProvider(100)
	store.Register(provider.ID, provider.DailyQuota)

	mockExecutor.On("Execute", mock.Anything, mock.AnythingOfType("*domain.OutboundRequest")).
		Return(nil, errors.New("dial tcp: connection refused")).Once()

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeTransportError, outcome.Status)
	assert.Contains(t, outcome.Reason, "connection refused")

	// The attempt reached the network, so the unit stays consumed.
	assert.Equal(t, 1, usedUnits(t, store, provider))
}

func TestDispatcher_CancelledBeforeExecutionReleasesQuota(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	dispatcher := NewDispatcher(NewResolver(), quota.NewGuard(store), mockExecutor, time.Second, logger)

	provider := testProvider(100)
	store.Register(provider.ID, provider.DailyQuota)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := dispatcher.Dispatch(ctx, provider, sampleRequest())

	assert.Equal(t, domain.OutcomeTransportError, outcome.Status)
	assert.Contains(t, outcome.Reason, "cancelled before execution")
	assert.Equal(t, 0, usedUnits(t, store, provider))
	mockExecutor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestDispatcher_SendsExactlyWhatValidatorShows(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := quota.NewMemoryStore()
	mockExecutor := new(MockExecutor)
	resolver := NewResolver()
	dispatcher := NewDispatcher(resolver, quota.NewGuard(store), mockExecutor, time.Second, logger)
	validator := NewValidator(resolver)

	provider := domain.NewProvider("postmark-main", domain.KindPostmark,
		domain.Credentials{Key: "pm-token"}, 1000)
	store.Register(provider.ID, provider.DailyQuota)
	req := sampleRequest()

	preview, err := validator.Validate(provider, req)
	require.NoError(t, err)

	var captured *domain.OutboundRequest
	mockExecutor.On("Execute", mock.Anything, mock.AnythingOfType("*domain.OutboundRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*domain.OutboundRequest)
		}).
		Return(&domain.HTTPResponse{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`{"MessageID":"pm-1"}`),
		}, nil).Once()

	outcome := dispatcher.Dispatch(ctx, provider, req)
	require.Equal(t, domain.OutcomeSent, outcome.Status)
	assert.Equal(t, "pm-1", outcome.ProviderMessageID)
	require.NotNil(t, captured)

	assert.Equal(t, preview.Method, captured.Method)
	assert.Equal(t, preview.URL, captured.URL)
	assert.Equal(t, preview.Headers, captured.Headers)

	previewBody, err := preview.EncodedBody()
	require.NoError(t, err)
	capturedBody, err := captured.EncodedBody()
	require.NoError(t, err)
	assert.Equal(t, previewBody, capturedBody)
}

func TestValidator_HasNoSideEffects(t *testing.T) {
	store := quota.NewMemoryStore()
	validator := NewValidator(NewResolver())

	provider := testProvider(100)
	store.Register(provider.ID, provider.DailyQuota)

	for i := 0; i < 5; i++ {
		out, err := validator.Validate(provider, sampleRequest())
		require.NoError(t, err)
		require.NotNil(t, out)
	}

	assert.Equal(t, 0, usedUnits(t, store, provider))
	assert.Equal(t, 0, provider.UsedToday)
}

func TestValidator_ReportsConfigErrors(t *testing.T) {
	validator := NewValidator(NewResolver())

	provider := domain.NewProvider("custom", domain.KindCustom, domain.Credentials{}, 10)
	provider.Endpoint = "https://api.acme.io/send"

	out, err := validator.Validate(provider, sampleRequest())

	assert.Nil(t, out)
	var cfgErr domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "payload_template", cfgErr.Field)
}
