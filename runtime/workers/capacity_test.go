package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelCapacityWorker_StopsOnCancel(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	mailbox := make(chan struct{}, 4)
	worker := NewChannelCapacityWorker(log,
		[]NamedChannel{{Name: "test.mailbox", Channel: mailbox}},
		10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Let a few sampling ticks happen, then cancel
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		req.Fail("Capacity worker should have stopped on cancel")
	}
}

func TestChannelCapacityWorker_IgnoresNonChannel(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := NewChannelCapacityWorker(log,
		[]NamedChannel{{Name: "not-a-channel", Channel: 42}},
		10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Sampling a non-channel must not panic, only log
	err := worker.Run(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}
