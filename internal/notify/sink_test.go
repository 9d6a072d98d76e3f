package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

func TestChannelSink_PublishFansOutToAllSubscribers(t *testing.T) {
	sink := NewChannelSink(8, logger.Default())
	defer sink.Close()

	var mu sync.Mutex
	var gotA, gotB []jsonrpc.OutboundNotification

	unsubA := sink.Subscribe(func(n jsonrpc.OutboundNotification) {
		mu.Lock()
		defer mu.Unlock()
		gotA = append(gotA, n)
	})
	defer unsubA()

	unsubB := sink.Subscribe(func(n jsonrpc.OutboundNotification) {
		mu.Lock()
		defer mu.Unlock()
		gotB = append(gotB, n)
	})
	defer unsubB()

	n := jsonrpc.OutboundNotification{SessionID: "sess-1", MessageID: "m-1", Kind: jsonrpc.KindProgress}
	require.NoError(t, sink.Publish(context.Background(), "sess-1", n))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotA) == 1 && len(gotB) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, n, gotA[0])
	require.Equal(t, n, gotB[0])
}

func TestChannelSink_UnsubscribeStopsDelivery(t *testing.T) {
	sink := NewChannelSink(8, logger.Default())
	defer sink.Close()

	var mu sync.Mutex
	count := 0
	unsub := sink.Subscribe(func(jsonrpc.OutboundNotification) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})
	unsub()

	require.NoError(t, sink.Publish(context.Background(), "sess-1", jsonrpc.OutboundNotification{SessionID: "sess-1"}))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, count)
}

func TestChannelSink_CloseIsIdempotentAndStopsFanout(t *testing.T) {
	sink := NewChannelSink(2, logger.Default())
	sink.Close()
	sink.Close() // must not panic on a double close

	err := sink.Publish(context.Background(), "sess-1", jsonrpc.OutboundNotification{SessionID: "sess-1"})
	require.Error(t, err)
}
