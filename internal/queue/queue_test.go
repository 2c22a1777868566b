package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	jobs, err := q.Consume(ctx)
	require.NoError(t, err)

	want := Job{StudentID: 7, Username: "2082442q"}
	require.NoError(t, q.Publish(ctx, want))

	select {
	case got := <-jobs:
		assert.Equal(t, want, got)
	case <-ctx.Done():
		t.Fatal("timed out waiting for job")
	}
}

func TestInMemoryPublishRespectsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewInMemory(0)
	err := q.Publish(ctx, Job{StudentID: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
