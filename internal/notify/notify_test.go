package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintbook/internal/config"
)

func TestRedisPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	pub := NewRedis(config.NotifyConfig{RedisAddr: mr.Addr()})
	defer pub.Close()
	assert.Equal(t, DefaultChannel, pub.Channel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	changes, err := pub.Subscribe(ctx)
	require.NoError(t, err)

	want := Change{Type: "assignment.slots.committed", AssignmentID: "a1", Tribe: "A", ResourceName: "R1", Role: "Dev", Sprints: []int{1, 2}}
	require.NoError(t, pub.Publish(ctx, want))

	select {
	case got := <-changes:
		assert.Equal(t, want, got)
	case <-ctx.Done():
		t.Fatal("no change received")
	}
}

func TestRedisPublishWithoutSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	pub := NewRedis(config.NotifyConfig{RedisAddr: mr.Addr(), Channel: "custom"})
	defer pub.Close()
	require.NoError(t, pub.Publish(context.Background(), Change{Type: "x"}))
}

func TestRedisPublishFailsWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	pub := NewRedis(config.NotifyConfig{RedisAddr: mr.Addr()})
	defer pub.Close()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, pub.Publish(ctx, Change{Type: "x"}))
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), Change{}))
}
