package policy

import (
	"context"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"

	"github.com/vireonet/vireo/pkg/core"
)

// retryResetInterval is how long an exhausted profile stays exhausted
// before the shared timer restores its retry budget.
const retryResetInterval = 5 * time.Minute

// noteActivationFailure updates the failed profile's retry bookkeeping. A
// missing-secrets failure blocks the profile instead of burning a retry.
func (e *Engine) noteActivationFailure(d *core.Device, reason core.StateReason) {
	p := d.AppliedProfile()
	if p == nil {
		return
	}
	ctx := e.ctx
	if reason == core.ReasonNoSecrets {
		dlog.Infof(ctx, "blocking autoconnect of %q: no secrets", p.ID)
		p.SetBlockedReason(core.BlockedNoSecrets)
	} else if n := p.RetriesRemaining(); n > 0 {
		n--
		p.SetRetriesRemaining(n)
		dlog.Debugf(ctx, "%q has %d autoconnect retries left", p.ID, n)
		if n == 0 {
			p.SetRetryTime(dtime.Now().Add(retryResetInterval))
			e.ensureRetryTimer()
		}
	}
	p.ClearSecrets()
}

func (e *Engine) noteActivationSuccess(d *core.Device) {
	if p := d.AppliedProfile(); p != nil {
		p.ResetRetries()
		p.ClearSecrets()
	}
}

// ensureRetryTimer schedules the single shared re-enable timer at the
// minimum retry-time across all profiles, unless one is already pending.
func (e *Engine) ensureRetryTimer() {
	if e.retryTimer != nil {
		return
	}
	next := e.nextRetryTime()
	if next.IsZero() {
		return
	}
	delay := next.Sub(dtime.Now())
	if delay < 0 {
		delay = 0
	}
	e.retryTimer = e.sched.After(delay, "autoconnect-retry-reset", func(context.Context) {
		e.retryTimer = nil
		e.onRetryTimer()
	})
}

func (e *Engine) nextRetryTime() time.Time {
	var next time.Time
	for _, p := range e.settings.Profiles() {
		rt := p.RetryTime()
		if rt.IsZero() {
			continue
		}
		if next.IsZero() || rt.Before(next) {
			next = rt
		}
	}
	return next
}

// onRetryTimer restores the budget of every profile whose retry-time has
// passed, reschedules for the next earliest future one, and kicks a fleet
// pass when anything changed.
func (e *Engine) onRetryTimer() {
	now := dtime.Now()
	changed := false
	for _, p := range e.settings.Profiles() {
		rt := p.RetryTime()
		if rt.IsZero() || rt.After(now) {
			continue
		}
		p.ResetRetries()
		changed = true
	}
	e.ensureRetryTimer()
	if changed {
		e.scheduleActivateAll()
	}
}

// resetScope selects which profiles a whole-fleet reset touches. The zero
// scope touches everything.
type resetScope struct {
	// onlyNoSecrets restricts the reset to profiles blocked for missing
	// secrets, and clears that block.
	onlyNoSecrets bool

	// device restricts the reset to profiles compatible with the device,
	// as after carrier-up.
	device *core.Device
}

func (e *Engine) resetAllRetries(scope resetScope) {
	for _, p := range e.settings.Profiles() {
		if scope.onlyNoSecrets {
			if p.BlockedReason() != core.BlockedNoSecrets {
				continue
			}
			p.SetBlockedReason(core.BlockedNone)
		}
		if scope.device != nil {
			if _, ok := scope.device.ProfileCompatible(p); !ok {
				continue
			}
		}
		p.ResetRetries()
	}
}
