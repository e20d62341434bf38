package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/insider-one/mailcourier/internal/domain"
)

// MockDeliveryRepository is a mock implementation of domain.DeliveryRepository
type MockDeliveryRepository struct {
	mock.Mock
}

func (m *MockDeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDeliveryRepository) CreateBatch(ctx context.Context, deliveries []*domain.Delivery) error {
	args := m.Called(ctx, deliveries)
	return args.Error(0)
}

func (m *MockDeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) GetByBatchID(ctx context.Context, batchID uuid.UUID) ([]*domain.Delivery, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) Update(ctx context.Context, d *domain.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDeliveryRepository) List(ctx context.Context, filter domain.DeliveryFilter) (*domain.DeliveryListResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeliveryListResult), args.Error(1)
}

// MockQueue is a mock implementation of domain.Queue
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, job *domain.DispatchJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockQueue) EnqueueBatch(ctx context.Context, jobs []*domain.DispatchJob) error {
	args := m.Called(ctx, jobs)
	return args.Error(0)
}

func (m *MockQueue) EnqueueAfter(ctx context.Context, job *domain.DispatchJob, delay time.Duration) error {
	args := m.Called(ctx, job, delay)
	return args.Error(0)
}

func (m *MockQueue) Dequeue(ctx context.Context) (*domain.DispatchJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DispatchJob), args.Error(1)
}

func (m *MockQueue) Depth(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func newSendService(deliveryRepo *MockDeliveryRepository, providerRepo *MockProviderRepository, queue *MockQueue) *SendService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewSendService(deliveryRepo, providerRepo, queue, logger)
}

func submitRequest() SubmitRequest {
	return SubmitRequest{
		Sender: domain.Address{Name: "Acme", Email: "no-reply@acme.io"},
		Recipients: []domain.Address{
			{Name: "Ada", Email: "ada@example.com"},
			{Name: "Bob", Email: "bob@example.com"},
		},
		Subject:  "Welcome aboard",
		HTML:     "<h1>Welcome</h1>",
		Text:     "Welcome",
		Metadata: map[string]any{"campaign": "onboarding"},
	}
}

func TestSendService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out one delivery per recipient", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		active := domain.NewProvider("resend-main", domain.KindResend, domain.Credentials{Key: "re_1"}, 500)
		providerRepo.On("ListActive", ctx).Return([]*domain.Provider{active}, nil).Once()
		deliveryRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Delivery")).Return(nil).Once()

		var enqueued []*domain.DispatchJob
		queue.On("EnqueueBatch", ctx, mock.AnythingOfType("[]*domain.DispatchJob")).
			Run(func(args mock.Arguments) {
				enqueued = args.Get(1).([]*domain.DispatchJob)
			}).
			Return(nil).Once()

		deliveries, err := service.Submit(ctx, submitRequest())

		require.NoError(t, err)
		require.Len(t, deliveries, 2)

		assert.Equal(t, "ada@example.com", deliveries[0].Recipient)
		assert.Equal(t, "bob@example.com", deliveries[1].Recipient)
		assert.Equal(t, domain.DeliveryQueued, deliveries[0].Status)

		require.NotNil(t, deliveries[0].BatchID)
		assert.Equal(t, deliveries[0].BatchID, deliveries[1].BatchID)
		assert.NotEqual(t, deliveries[0].ID, deliveries[1].ID)

		// Each delivery carries the request narrowed to its own recipient
		require.Len(t, deliveries[0].Request.Recipients, 1)
		assert.Equal(t, "ada@example.com", deliveries[0].Request.Recipients[0].Email)
		assert.Equal(t, "Welcome aboard", deliveries[0].Request.Subject)

		require.Len(t, enqueued, 2)
		assert.Equal(t, deliveries[0].ID, enqueued[0].DeliveryID)
		assert.Equal(t, deliveries[1].ID, enqueued[1].DeliveryID)
		assert.Nil(t, enqueued[0].ProviderID)
	})

	t.Run("pins every delivery to the requested provider", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		pinned := domain.NewProvider("postmark-main", domain.KindPostmark, domain.Credentials{Key: "srv"}, 500)
		providerRepo.On("GetByID", ctx, pinned.ID).Return(pinned, nil).Once()
		deliveryRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Delivery")).Return(nil).Once()

		var enqueued []*domain.DispatchJob
		queue.On("EnqueueBatch", ctx, mock.AnythingOfType("[]*domain.DispatchJob")).
			Run(func(args mock.Arguments) {
				enqueued = args.Get(1).([]*domain.DispatchJob)
			}).
			Return(nil).Once()

		req := submitRequest()
		req.ProviderID = &pinned.ID

		deliveries, err := service.Submit(ctx, req)

		require.NoError(t, err)
		require.Len(t, deliveries, 2)
		require.NotNil(t, deliveries[0].ProviderID)
		assert.Equal(t, pinned.ID, *deliveries[0].ProviderID)
		require.NotNil(t, enqueued[0].ProviderID)
		assert.Equal(t, pinned.ID, *enqueued[0].ProviderID)
		providerRepo.AssertNotCalled(t, "ListActive", mock.Anything)
	})

	t.Run("rejects pin to inactive provider", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		pinned := domain.NewProvider("postmark-main", domain.KindPostmark, domain.Credentials{Key: "srv"}, 500)
		pinned.IsActive = false
		providerRepo.On("GetByID", ctx, pinned.ID).Return(pinned, nil).Once()

		req := submitRequest()
		req.ProviderID = &pinned.ID

		deliveries, err := service.Submit(ctx, req)

		assert.Error(t, err)
		assert.Equal(t, domain.ErrProviderInactive, err)
		assert.Nil(t, deliveries)
		deliveryRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("rejects pin to unknown provider", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		id := uuid.New()
		providerRepo.On("GetByID", ctx, id).Return(nil, domain.ErrNotFound).Once()

		req := submitRequest()
		req.ProviderID = &id

		deliveries, err := service.Submit(ctx, req)

		assert.Error(t, err)
		assert.Nil(t, deliveries)
	})

	t.Run("rejects submit when no provider is active", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		providerRepo.On("ListActive", ctx).Return([]*domain.Provider{}, nil).Once()

		deliveries, err := service.Submit(ctx, submitRequest())

		assert.Error(t, err)
		assert.Equal(t, domain.ErrNoEligibleProvider, err)
		assert.Nil(t, deliveries)
	})

	t.Run("rejects request without recipients", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		req := submitRequest()
		req.Recipients = nil

		deliveries, err := service.Submit(ctx, req)

		assert.Error(t, err)
		assert.Nil(t, deliveries)
	})

	t.Run("rejects request without body", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		req := submitRequest()
		req.HTML = ""
		req.Text = ""

		deliveries, err := service.Submit(ctx, req)

		assert.Error(t, err)
		assert.Nil(t, deliveries)
	})

	t.Run("rejects oversized fan-out", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		req := submitRequest()
		req.Recipients = make([]domain.Address, maxFanOut+1)
		for i := range req.Recipients {
			req.Recipients[i] = domain.Address{Email: "user@example.com"}
		}

		deliveries, err := service.Submit(ctx, req)

		assert.Error(t, err)
		assert.Equal(t, domain.ErrBatchSizeExceeded, err)
		assert.Nil(t, deliveries)
	})

	t.Run("enqueue failure does not fail the request", func(t *testing.T) {
		deliveryRepo := new(MockDeliveryRepository)
		providerRepo := new(MockProviderRepository)
		queue := new(MockQueue)
		service := newSendService(deliveryRepo, providerRepo, queue)

		active := domain.NewProvider("resend-main", domain.KindResend, domain.Credentials{Key: "re_1"}, 500)
		providerRepo.On("ListActive", ctx).Return([]*domain.Provider{active}, nil).Once()
		deliveryRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Delivery")).Return(nil).Once()
		queue.On("EnqueueBatch", ctx, mock.AnythingOfType("[]*domain.DispatchJob")).
			Return(assert.AnError).Once()

		deliveries, err := service.Submit(ctx, submitRequest())

		assert.NoError(t, err)
		assert.Len(t, deliveries, 2)
	})
}

func TestSendService_Cancel(t *testing.T) {
	ctx := context.Background()

	deliveryRepo := new(MockDeliveryRepository)
	providerRepo := new(MockProviderRepository)
	queue := new(MockQueue)
	service := newSendService(deliveryRepo, providerRepo, queue)

	t.Run("cancel queued delivery", func(t *testing.T) {
		delivery := domain.NewDelivery(submitRequest().sendRequest())

		deliveryRepo.On("GetByID", ctx, delivery.ID).Return(delivery, nil).Once()
		deliveryRepo.On("Update", ctx, delivery).Return(nil).Once()

		err := service.Cancel(ctx, delivery.ID)

		assert.NoError(t, err)
		assert.Equal(t, domain.DeliveryCancelled, delivery.Status)
	})

	t.Run("cannot cancel sent delivery", func(t *testing.T) {
		delivery := domain.NewDelivery(submitRequest().sendRequest())
		delivery.MarkAsSent("msg-1", 200)

		deliveryRepo.On("GetByID", ctx, delivery.ID).Return(delivery, nil).Once()

		err := service.Cancel(ctx, delivery.ID)

		assert.Error(t, err)
		assert.Equal(t, domain.ErrCannotCancel, err)
	})

	t.Run("cancel non-existent delivery", func(t *testing.T) {
		id := uuid.New()

		deliveryRepo.On("GetByID", ctx, id).Return(nil, domain.ErrNotFound).Once()

		err := service.Cancel(ctx, id)

		assert.Error(t, err)
		assert.Equal(t, domain.ErrNotFound, err)
	})
}
