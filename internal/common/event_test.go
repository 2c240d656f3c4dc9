package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventListenerDispatcherFansOutToAllSubscribers(t *testing.T) {
	d := NewEventListenerDispatcher()

	ch1 := make(chan Event, 1)
	ch2 := make(chan Event, 1)
	d.Subscribe(ch1)
	d.Subscribe(ch2)

	d.Emit(Event{Type: RoleChanged, Term: 3, Data: "leader"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, RoleChanged, e.Type)
			assert.Equal(t, uint64(3), e.Term)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestEventListenerDispatcherNoSubscribers(t *testing.T) {
	d := NewEventListenerDispatcher()
	require.NotPanics(t, func() { d.Emit(Event{Type: TTLSwept}) })
}
