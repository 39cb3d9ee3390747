package policy

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

// pendingActionAutoActivate is the marker placed on a device while an
// auto-activation check is queued, so external waiters can observe
// readiness.
const pendingActionAutoActivate = "autoactivate"

// schedulePending coalesces auto-activation decision requests: at most one
// deferred check exists per device, and none is queued while the manager
// sleeps, the device is disabled or forbids auto-connect, or a session is
// already bound to the device.
func (e *Engine) schedulePending(d *core.Device) {
	ctx := e.ctx
	if e.manager.Sleeping() || !e.manager.NetworkingEnabled() {
		return
	}
	switch d.State() {
	case core.StateUnmanaged, core.StateUnavailable:
		return
	default:
	}
	if !d.AutoconnectAllowed() {
		return
	}
	if _, ok := e.pending[d]; ok {
		return
	}
	for _, as := range e.manager.ActiveSessions() {
		if as.Device() == d {
			return
		}
	}

	dlog.Debugf(ctx, "queueing auto-activation check for %s", d.Iface)
	d.AddPendingAction(pendingActionAutoActivate)
	e.pending[d] = e.sched.Idle("auto-activate "+d.Iface, func(context.Context) {
		delete(e.pending, d)
		d.RemovePendingAction(pendingActionAutoActivate)
		e.autoActivateDevice(d)
	})
}

// clearPending removes the device's entry, if any, cancelling the deferred
// check before it fires.
func (e *Engine) clearPending(d *core.Device) {
	tok, ok := e.pending[d]
	if !ok {
		return
	}
	tok.Cancel()
	delete(e.pending, d)
	d.RemovePendingAction(pendingActionAutoActivate)
}

// scheduleActivateAll queues a whole-fleet auto-activation pass. Repeated
// calls coalesce onto a single idle task.
func (e *Engine) scheduleActivateAll() {
	if e.activateAll != nil {
		return
	}
	e.activateAll = e.sched.Idle("activate-all", func(context.Context) {
		e.activateAll = nil
		for _, d := range e.manager.Devices() {
			e.schedulePending(d)
		}
	})
}
