package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedBackend struct {
	fakeBackend
	gate chan struct{}
}

func (g *gatedBackend) Write(ctx context.Context, rec Record) error {
	<-g.gate
	return g.fakeBackend.Write(ctx, rec)
}

func TestAsyncPersister_DrainsOnClose(t *testing.T) {
	store := &fakeBackend{name: "sqlite", configured: true}
	p := NewAsyncPersister(NewChain(ChainConfig{}, testLogger(), store), 16, testLogger())

	var mu sync.Mutex
	var outcomes []Outcome
	p.OnOutcome(func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(testReport("Patient_Q"), nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))

	assert.Equal(t, 5, store.count())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 5)
	for _, o := range outcomes {
		assert.Equal(t, "sqlite", o.StoredIn)
	}

	assert.ErrorIs(t, p.Submit(testReport("Patient_Late"), nil), ErrPersisterClosed)
}

func TestAsyncPersister_FullQueueDrops(t *testing.T) {
	store := &gatedBackend{
		fakeBackend: fakeBackend{name: "sqlite", configured: true},
		gate:        make(chan struct{}),
	}
	chain := NewChain(ChainConfig{WriteTimeout: 5 * time.Second}, testLogger(), store)
	p := NewAsyncPersister(chain, 1, testLogger())

	// The worker takes the first report and blocks on the gate; the second
	// fills the queue.
	require.NoError(t, p.Submit(testReport("Patient_1"), nil))
	require.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Submit(testReport("Patient_2"), nil))

	assert.ErrorIs(t, p.Submit(testReport("Patient_3"), nil), ErrQueueFull)

	close(store.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 2, store.count())
}

func TestAsyncPersister_CloseHonoursDeadline(t *testing.T) {
	store := &gatedBackend{
		fakeBackend: fakeBackend{name: "sqlite", configured: true},
		gate:        make(chan struct{}),
	}
	p := NewAsyncPersister(NewChain(ChainConfig{WriteTimeout: 5 * time.Second}, testLogger(), store), 4, testLogger())
	require.NoError(t, p.Submit(testReport("Patient_Stuck"), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)

	close(store.gate)
}
