package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpsolver/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	other := b.Subscribe("r2")

	b.Publish("r1", model.RunEvent{Type: "test.event", Data: map[string]any{"x": 1}})

	select {
	case got := <-ch:
		assert.Equal(t, "test.event", got.Type)
		assert.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	assert.Empty(t, other)

	b.Unsubscribe("r1", ch)
	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
	// second unsubscribe is a no-op
	b.Unsubscribe("r1", ch)
	b.Publish("r1", model.RunEvent{Type: "after"})
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	for i := 0; i < cap(ch)+5; i++ {
		b.Publish("r1", model.RunEvent{Type: "e"})
	}
	assert.Len(t, ch, cap(ch))
}
