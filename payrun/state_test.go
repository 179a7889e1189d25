package payrun

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusDraft, StatusProcessed, StatusInReview, StatusApproved, StatusPaid, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusDraft, StatusProcessed}:     true,
		{StatusDraft, StatusCancelled}:     true,
		{StatusProcessed, StatusProcessed}: true,
		{StatusProcessed, StatusInReview}:  true,
		{StatusProcessed, StatusCancelled}: true,
		{StatusInReview, StatusApproved}:   true,
		{StatusInReview, StatusCancelled}:  true,
		{StatusApproved, StatusPaid}:       true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	// Paid is the only way out of approved; nothing can cancel it.
	assert.False(t, CanTransition(StatusApproved, StatusCancelled))
	assert.True(t, IsTerminal(StatusPaid))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal(StatusApproved))
}

func TestCheckTransition_LockedWins(t *testing.T) {
	run := &PayRun{ID: "run-1", Status: StatusPaid, Locked: true}
	assert.ErrorIs(t, checkTransition(run, StatusProcessed), ErrRunLocked)

	run = &PayRun{ID: "run-1", Status: StatusDraft}
	err := checkTransition(run, StatusPaid)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusDraft, te.From)
	assert.Equal(t, StatusPaid, te.To)
}

func TestForEach_BoundsConcurrency(t *testing.T) {
	var running, peak, done int32
	err := forEach(context.Background(), 3, 20, func(ctx context.Context, i int) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&done, 1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(20), done)
	assert.LessOrEqual(t, peak, int32(3))
}

func TestForEach_FirstErrorStops(t *testing.T) {
	boom := errors.New("boom")
	err := forEach(context.Background(), 1, 10, func(ctx context.Context, i int) error {
		if i == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
