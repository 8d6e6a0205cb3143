package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalance_UnknownUserIsZero(t *testing.T) {
	l := New(NewMemoryStore())

	bal, err := l.Balance(context.Background(), "u_nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestTrySpend_ExactBalance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := New(store)

	require.NoError(t, store.Credit(ctx, "u1", 2))

	granted, err := l.TrySpend(ctx, "u1", 2)
	require.NoError(t, err)
	assert.True(t, granted)

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(0), bal)
}

func TestTrySpend_InsufficientIsDeniedNotError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := New(store)

	require.NoError(t, store.Credit(ctx, "u1", 2))

	granted, err := l.TrySpend(ctx, "u1", 3)
	require.NoError(t, err)
	assert.False(t, granted)

	// Denied spend must not mutate the balance.
	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(2), bal)
}

func TestTrySpend_InvalidAmount(t *testing.T) {
	l := New(NewMemoryStore())

	_, err := l.TrySpend(context.Background(), "u1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.TrySpend(context.Background(), "u1", -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// Two browser tabs spending at once must never overdraw the account: the sum
// of granted spends can never exceed the credited balance.
func TestTrySpend_ConcurrentNeverOverspends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := New(store)

	const balance = 50
	const workers = 200

	require.NoError(t, store.Credit(ctx, "u1", balance))

	var granted int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := l.TrySpend(ctx, "u1", 1)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(balance), granted)

	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestCredit_RejectsNonPositive(t *testing.T) {
	store := NewMemoryStore()

	assert.ErrorIs(t, store.Credit(context.Background(), "u1", 0), ErrInvalidAmount)
	assert.ErrorIs(t, store.Credit(context.Background(), "u1", -10), ErrInvalidAmount)
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []int64
}

func (r *recordingNotifier) BalanceChanged(userID string, balance int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, balance)
}

func TestTrySpend_NotifiesBalanceChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := New(store)

	n := &recordingNotifier{}
	l.SetNotifier(n)

	require.NoError(t, store.Credit(ctx, "u1", 3))

	granted, err := l.TrySpend(ctx, "u1", 1)
	require.NoError(t, err)
	require.True(t, granted)

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.updates, 1)
	assert.Equal(t, int64(2), n.updates[0])
}
