package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlabs/tonctl/liteapi"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Emit(MessageSent{MessageID: "aa"})
	bus.Emit(CallConfirmed{MessageID: "aa", TxHash: "bb", ExitCode: 0})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		sent, ok := ev.(MessageSent)
		require.True(t, ok)
		assert.Equal(t, "aa", sent.MessageID)

		ev = <-ch
		confirmed, ok := ev.(CallConfirmed)
		require.True(t, ok)
		assert.Equal(t, "bb", confirmed.TxHash)
	}

	bus.Close()
	_, open := <-a
	assert.False(t, open)
	_, open = <-b
	assert.False(t, open)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	for i := 0; i < 150; i++ {
		bus.Emit(MessageSent{MessageID: "x"})
	}

	// The first 100 fit in the buffer, the rest are dropped without blocking.
	assert.Len(t, ch, 100)
	bus.Close()
}

func TestBusEmitWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Emit(ReplayStarted{MessageID: "aa", ExitCode: 77})
	bus.Close()
}

func TestLogSinkNilLogger(t *testing.T) {
	var sink LogSink
	sink.Emit(ReplayFinished{MessageID: "aa", TracePath: "trace.log"})
}

func TestCallEmitsLifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{Hash: []byte{0xAA, 0xBB}, ExitCode: 0}
	bus := NewBus()
	env.pipe.sink = bus
	ch := bus.Subscribe()

	outcome := env.pipe.Call(context.Background(), Mode{}, testRequest(t))
	require.Nil(t, outcome.Err)

	ev := <-ch
	sent, ok := ev.(MessageSent)
	require.True(t, ok)
	assert.Equal(t, outcome.MessageID, sent.MessageID)

	ev = <-ch
	confirmed, ok := ev.(CallConfirmed)
	require.True(t, ok)
	assert.Equal(t, outcome.TxHash, confirmed.TxHash)
}
