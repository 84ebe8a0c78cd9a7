package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxElapsed time.Duration) *Startup {
	s := New(maxElapsed, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.initialInterval = time.Millisecond
	return s
}

func TestStartup_RunsTasksInOrder(t *testing.T) {
	s := newTestStartup(time.Second)

	var order []string
	s.Add("first", func(context.Context) error { order = append(order, "first"); return nil })
	s.Add("second", func(context.Context) error { order = append(order, "second"); return nil })

	status, _ := s.CheckReady()
	assert.Equal(t, "fail", status)
	assert.False(t, s.Ready())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.True(t, s.Ready())

	status, _ = s.CheckReady()
	assert.Equal(t, "ok", status)
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	s := newTestStartup(5 * time.Second)

	attempts := 0
	s.Add("db-ping", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.True(t, s.Ready())
}

func TestStartup_GivesUpAfterMaxElapsed(t *testing.T) {
	s := newTestStartup(30 * time.Millisecond)

	next := false
	s.Add("broken", func(context.Context) error { return errors.New("still down") })
	s.Add("next", func(context.Context) error { next = true; return nil })

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.False(t, next, "после неудачной задачи следующие не выполняются")
	assert.False(t, s.Ready())

	status, msg := s.CheckReady()
	assert.Equal(t, "fail", status)
	assert.Contains(t, msg, "still down")
}

func TestStartup_PermanentErrorStopsRetries(t *testing.T) {
	s := newTestStartup(5 * time.Second)

	attempts := 0
	s.Add("config", func(context.Context) error {
		attempts++
		return Permanent(errors.New("bad schedule"))
	})

	require.Error(t, s.Run(context.Background()))
	assert.Equal(t, 1, attempts)
}

func TestStartup_ContextCancel(t *testing.T) {
	s := newTestStartup(time.Minute)
	s.Add("never", func(context.Context) error { return errors.New("down") })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.Error(t, s.Run(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStartup_RunOnlyOnce(t *testing.T) {
	s := newTestStartup(time.Second)

	runs := 0
	s.Add("once", func(context.Context) error { runs++; return nil })

	require.NoError(t, s.Run(context.Background()))
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 1, runs)
}
