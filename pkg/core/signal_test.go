package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterHandlersRunLast(t *testing.T) {
	s := NewSignal[int]()
	var order []string
	s.ConnectAfter(func(int) { order = append(order, "after") })
	s.Connect(func(int) { order = append(order, "default") })
	s.Emit(1)
	assert.Equal(t, []string{"default", "after"}, order)
}

func TestSubscriptionClose(t *testing.T) {
	s := NewSignal[int]()
	calls := 0
	sub := s.Connect(func(int) { calls++ })
	s.Emit(1)
	sub.Close()
	sub.Close() // idempotent
	s.Emit(2)
	assert.Equal(t, 1, calls)
}

func TestDisconnectDuringEmit(t *testing.T) {
	s := NewSignal[int]()
	var sub Subscription
	calls := 0
	sub = s.Connect(func(int) {
		calls++
		sub.Close()
	})
	s.Emit(1)
	s.Emit(2)
	assert.Equal(t, 1, calls)
}

func TestProfileCanAutoconnect(t *testing.T) {
	p := &Profile{ID: "p", Autoconnect: true, Visible: true}
	assert.True(t, p.CanAutoconnect())

	p.SetBlockedReason(BlockedNoSecrets)
	assert.False(t, p.CanAutoconnect())
	p.SetBlockedReason(BlockedNone)

	p.SetRetriesRemaining(0)
	assert.False(t, p.CanAutoconnect())
	p.ResetRetries()
	assert.True(t, p.CanAutoconnect())

	p.Visible = false
	assert.False(t, p.CanAutoconnect())
}

func TestRetriesNeverNegative(t *testing.T) {
	p := &Profile{ID: "p"}
	p.SetRetriesRemaining(-3)
	assert.Equal(t, 0, p.RetriesRemaining())
}

func TestDeviceTransitionEmitsOnChangeOnly(t *testing.T) {
	d := NewDevice("id", "eth0", 1, ProfileTypeEthernet)
	var changes []DeviceStateChange
	d.StateChanged.Connect(func(ch DeviceStateChange) { changes = append(changes, ch) })

	d.Transition(StatePrepare, ReasonNone)
	d.Transition(StatePrepare, ReasonNone) // same state, no event
	d.Transition(StateActivated, ReasonNone)

	assert.Len(t, changes, 2)
	assert.Equal(t, StateDisconnected, changes[0].Old)
	assert.Equal(t, StatePrepare, changes[1].Old)
}

func TestTakeAssumeUUIDConsumes(t *testing.T) {
	d := NewDevice("id", "eth0", 1, ProfileTypeEthernet)
	d.SetAssumeUUID("u")
	assert.Equal(t, "u", d.TakeAssumeUUID())
	assert.Equal(t, "", d.TakeAssumeUUID())
}
