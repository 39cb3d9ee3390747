package policy

import (
	"github.com/vireonet/vireo/pkg/core"
)

// registerDevice subscribes the engine to a device's event streams. The
// state-changed handler is connected with after-semantics so the engine
// observes transitions only after the device's own handlers completed.
// Registering an already registered device is a no-op.
func (e *Engine) registerDevice(d *core.Device) {
	if _, ok := e.devices[d]; ok {
		return
	}
	e.devices[d] = []core.Subscription{
		d.StateChanged.ConnectAfter(func(ch core.DeviceStateChange) {
			e.onDeviceStateChanged(d, ch)
		}),
		d.IP4Changed.Connect(func(ch core.ConfigChange) {
			e.onDeviceIPChanged(d, core.FamilyV4, ch)
		}),
		d.IP6Changed.Connect(func(ch core.ConfigChange) {
			e.onDeviceIPChanged(d, core.FamilyV6, ch)
		}),
		d.AutoconnectChanged.Connect(func(struct{}) {
			e.schedulePending(d)
		}),
		d.RecheckAutoConnect.Connect(func(struct{}) {
			e.onRecheckAutoConnect(d)
		}),
	}
}

// unregisterDevice fully detaches all of the device's subscriptions. No
// residual callback fires into the engine afterwards.
func (e *Engine) unregisterDevice(d *core.Device) {
	subs, ok := e.devices[d]
	if !ok {
		return
	}
	for _, sub := range subs {
		sub.Close()
	}
	delete(e.devices, d)
}

// onRecheckAutoConnect handles a device's explicit request to re-evaluate
// auto-activation, typically after carrier came back up.
func (e *Engine) onRecheckAutoConnect(d *core.Device) {
	e.resetAllRetries(resetScope{device: d})
	e.schedulePending(d)
}

// watchSession subscribes to an active session's state stream and, for VPN
// sessions, to the internal retry signal.
func (e *Engine) watchSession(s *core.ActiveSession) {
	if _, ok := e.sessions[s]; ok {
		return
	}
	subs := []core.Subscription{
		s.StateChanged.Connect(func(ch core.SessionStateChange) {
			e.onSessionStateChanged(s, ch)
		}),
	}
	if s.VPN != nil {
		subs = append(subs,
			s.VPN.InternalStateChanged.Connect(func(ch core.SessionStateChange) {
				e.onSessionStateChanged(s, ch)
			}),
			s.VPN.RetryAfterFailure.Connect(func(struct{}) {
				e.onVPNRetry(s)
			}),
		)
	}
	e.sessions[s] = subs
}

func (e *Engine) unwatchSession(s *core.ActiveSession) {
	subs, ok := e.sessions[s]
	if !ok {
		return
	}
	for _, sub := range subs {
		sub.Close()
	}
	delete(e.sessions, s)
}
