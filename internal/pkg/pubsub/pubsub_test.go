package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPubSub(t *testing.T) (*Publisher, *Subscriber) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewPublisher(client), NewSubscriber(client)
}

func TestPublishSubscribe(t *testing.T) {
	pub, sub := setupPubSub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *ProgressMessage, 1)
	go func() {
		_ = sub.Subscribe(ctx, func(msg *ProgressMessage) {
			received <- msg
		})
	}()

	// Give the subscription a moment to attach
	time.Sleep(50 * time.Millisecond)

	err := pub.PublishProgress(ctx, &ProgressMessage{
		UserID:   "user-1",
		JobID:    "job-1",
		GeoID:    "GSE12345",
		Status:   "downloading",
		Progress: 20,
		Message:  "Fetching dataset from GEO",
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "job_progress", msg.Type)
		assert.Equal(t, "user-1", msg.UserID)
		assert.Equal(t, "job-1", msg.JobID)
		assert.Equal(t, "downloading", msg.Status)
		assert.Equal(t, 20, msg.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for progress message")
	}
}

func TestSubscribe_StopsOnContextCancel(t *testing.T) {
	_, sub := setupPubSub(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- sub.Subscribe(ctx, func(*ProgressMessage) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscriber did not stop after cancellation")
	}
}
