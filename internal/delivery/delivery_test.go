package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-key-vault/internal/delivery"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// MockCallback is a mock implementation of keyvault.Callback.
type MockCallback struct {
	mock.Mock
}

func (m *MockCallback) Invoke(ctx context.Context, err error, result any) error {
	args := m.Called(ctx, err, result)
	return args.Error(0)
}

type progressLog struct {
	titles  []string
	details []string
}

func (p *progressLog) Loading(title, detail string) {
	p.titles = append(p.titles, title)
	p.details = append(p.details, detail)
}

func newDeliverer(cb keyvault.Callback, progress *progressLog, intervals *[]time.Duration) *delivery.Deliverer {
	return delivery.New(cb, progress, zerolog.Nop(),
		delivery.WithInitialInterval(time.Millisecond),
		delivery.WithObserver(func(attempt int, next time.Duration) {
			*intervals = append(*intervals, next)
		}),
	)
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	result := keyvault.KeyState{HasKeyPair: true}

	t.Run("Success - first attempt", func(t *testing.T) {
		cb := new(MockCallback)
		cb.On("Invoke", mock.Anything, nil, result).Return(nil).Once()
		progress := &progressLog{}
		var intervals []time.Duration

		err := newDeliverer(cb, progress, &intervals).Deliver(ctx, "Registering Key", result)

		require.NoError(t, err)
		cb.AssertExpectations(t)
		assert.Empty(t, progress.titles)
		assert.Empty(t, intervals)
	})

	t.Run("Success - recovers after two failures", func(t *testing.T) {
		cb := new(MockCallback)
		cb.On("Invoke", mock.Anything, nil, result).Return(errors.New("parent busy")).Twice()
		cb.On("Invoke", mock.Anything, nil, result).Return(nil).Once()
		progress := &progressLog{}
		var intervals []time.Duration

		err := newDeliverer(cb, progress, &intervals).Deliver(ctx, "Registering Key", result)

		require.NoError(t, err)
		cb.AssertNumberOfCalls(t, "Invoke", 3)
		assert.Equal(t, []string{"Registering Key (attempt: 1)", "Registering Key (attempt: 2)"}, progress.titles)
		assert.Equal(t, "Error in Main App: parent busy", progress.details[0])
	})

	t.Run("Failure - gives up after five retries with growing intervals", func(t *testing.T) {
		cb := new(MockCallback)
		cb.On("Invoke", mock.Anything, nil, result).Return(errors.New("parent gone"))
		progress := &progressLog{}
		var intervals []time.Duration

		err := newDeliverer(cb, progress, &intervals).Deliver(ctx, "Posting Transaction", result)

		require.Error(t, err)
		assert.ErrorIs(t, err, keyvault.ErrDelivery)
		cb.AssertNumberOfCalls(t, "Invoke", 1+delivery.MaxRetries)

		require.Len(t, progress.titles, 1+delivery.MaxRetries)
		for i, title := range progress.titles {
			assert.Equal(t, fmt.Sprintf("Posting Transaction (attempt: %d)", i+1), title)
		}

		require.Len(t, intervals, delivery.MaxRetries)
		for i := 1; i < len(intervals); i++ {
			assert.Greater(t, intervals[i], intervals[i-1])
			ratio := float64(intervals[i]) / float64(intervals[i-1])
			assert.InDelta(t, delivery.Multiplier, ratio, 0.01)
		}
	})
}

func TestDeliverError(t *testing.T) {
	ctx := context.Background()
	flowErr := keyvault.ErrCancelled

	t.Run("Success - sent once", func(t *testing.T) {
		cb := new(MockCallback)
		cb.On("Invoke", mock.Anything, flowErr, nil).Return(nil).Once()

		err := delivery.New(cb, &progressLog{}, zerolog.Nop()).DeliverError(ctx, flowErr)

		require.NoError(t, err)
		cb.AssertExpectations(t)
	})

	t.Run("Failure - never retried", func(t *testing.T) {
		cb := new(MockCallback)
		cb.On("Invoke", mock.Anything, flowErr, nil).Return(errors.New("closed"))

		err := delivery.New(cb, &progressLog{}, zerolog.Nop()).DeliverError(ctx, flowErr)

		assert.ErrorIs(t, err, keyvault.ErrDelivery)
		cb.AssertNumberOfCalls(t, "Invoke", 1)
	})
}

func TestReport(t *testing.T) {
	cb := new(MockCallback)
	state := keyvault.KeyState{}
	cb.On("Invoke", mock.Anything, nil, state).Return(errors.New("ignored")).Once()

	delivery.New(cb, &progressLog{}, zerolog.Nop()).Report(context.Background(), state)

	cb.AssertNumberOfCalls(t, "Invoke", 1)
}
