package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(NewThumbnail("abcd1234"))

	select {
	case ev := <-sub:
		require.Equal(t, KindNewThumbnail, ev.Kind)
		require.Equal(t, "abcd1234", ev.CasID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishNotReplayedBeforeSubscribe(t *testing.T) {
	b := NewBroker()
	b.Publish(NewThumbnail("before"))

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case ev := <-sub:
		t.Fatalf("unexpected replayed event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInvalidateOperationNotDebounced(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish(InvalidateOperation("job:1"))
	}

	count := 0
	timeout := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case <-sub:
			count++
		case <-timeout:
			break drain
		}
	}
	require.Equal(t, 5, count)
}

func TestInvalidateOperationDebouncedCoalesces(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 20; i++ {
		b.Publish(InvalidateOperationDebounced("job:1"))
	}

	count := 0
	timeout := time.After(500 * time.Millisecond)
drain:
	for {
		select {
		case <-sub:
			count++
		case <-timeout:
			break drain
		}
	}
	require.Less(t, count, 20)
	require.GreaterOrEqual(t, count, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	require.False(t, ok)
}
