package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetachKeepsCorrelationValues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = WithPrincipal(ctx, "user-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	detached := Detach(ctx)
	cancel()

	assert.NoError(t, detached.Err())
	assert.Equal(t, "user-1", Principal(detached))
	assert.Equal(t, "req-1", RequestID(detached))
	assert.NotEqual(t, 2024, Now(detached).Year())
}

func TestDefaults(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Principal(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestCarryIntoUsesParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	from := WithRequestID(context.Background(), "req-2")

	carried := CarryInto(parent, from)
	assert.Equal(t, "req-2", RequestID(carried))
	assert.Empty(t, Principal(carried))

	cancel()
	assert.ErrorIs(t, carried.Err(), context.Canceled)
}
