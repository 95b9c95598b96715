package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberLocksSerializePerMember(t *testing.T) {
	var (
		locks   memberLocks
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := locks.lock(t.Context(), "u1")
			if err != nil {
				return
			}
			defer unlock()

			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.held(), "released entries are dropped")
}

func TestMemberLocksIndependentMembers(t *testing.T) {
	var locks memberLocks

	unlock, err := locks.lock(t.Context(), "u1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	other, err := locks.lock(ctx, "u2")
	require.NoError(t, err, "another member is not blocked")
	other()
}

func TestMemberLocksHonourContext(t *testing.T) {
	var locks memberLocks

	unlock, err := locks.lock(t.Context(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err = locks.lock(ctx, "u1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, locks.held())
}
