package policy

import (
	"github.com/datawire/dlib/dlog"
	"github.com/hashicorp/go-multierror"

	"github.com/vireonet/vireo/pkg/core"
)

// secondariesEntry tracks the dependent VPN sessions a base device is
// waiting on. The session set is non-empty for as long as the entry
// exists.
type secondariesEntry struct {
	base     *core.Device
	sessions map[*core.ActiveSession]struct{}
}

// launchSecondaries starts the base profile's declared secondaries, in
// declared order. A secondary that does not exist or is not a VPN aborts
// the whole batch: already launched sessions are released and the base is
// driven to failed.
func (e *Engine) launchSecondaries(d *core.Device) {
	ctx := e.ctx
	base := d.ActiveSession()
	p := d.AppliedProfile()
	if base == nil || p == nil {
		return
	}
	secs := p.SecondaryUUIDs
	if len(secs) == 0 {
		d.Transition(core.StateActivated, core.ReasonNone)
		return
	}

	entry := &secondariesEntry{base: d, sessions: make(map[*core.ActiveSession]struct{}, len(secs))}
	var launched []*core.ActiveSession
	for _, uuid := range secs {
		sp := e.settings.ProfileByUUID(uuid)
		if sp == nil {
			dlog.Warnf(ctx, "secondary %s of %q does not exist", uuid, p.ID)
			e.abortSecondaries(d, launched)
			return
		}
		if !sp.IsVPN() {
			dlog.Warnf(ctx, "secondary %q of %q is not a VPN", sp.ID, p.ID)
			e.abortSecondaries(d, launched)
			return
		}
		dlog.Infof(ctx, "activating secondary %q for %q", sp.ID, p.ID)
		as, err := e.manager.Activate(ctx, sp, base.Path, d, base.Subject, core.ActivationFull)
		if err != nil {
			dlog.Warnf(ctx, "activation of secondary %q failed: %v", sp.ID, err)
			e.abortSecondaries(d, launched)
			return
		}
		launched = append(launched, as)
		entry.sessions[as] = struct{}{}
	}
	e.secondaries[d] = entry
}

func (e *Engine) abortSecondaries(d *core.Device, launched []*core.ActiveSession) {
	ctx := e.ctx
	var errs *multierror.Error
	for _, as := range launched {
		if err := e.manager.Deactivate(ctx, as.Path, core.ReasonSecondaryConnectionFailed); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		dlog.Warnf(ctx, "releasing partially launched secondaries: %v", err)
	}
	delete(e.secondaries, d)
	d.Transition(core.StateFailed, core.ReasonSecondaryConnectionFailed)
}

// noteSecondaryOutcome follows a tracked secondary's state. The base is
// promoted when its last secondary activates, and failed when any
// secondary deactivates first.
func (e *Engine) noteSecondaryOutcome(s *core.ActiveSession, ch core.SessionStateChange) {
	for base, entry := range e.secondaries {
		if _, ok := entry.sessions[s]; !ok {
			continue
		}
		switch ch.New {
		case core.SessionActivated:
			delete(entry.sessions, s)
			if len(entry.sessions) == 0 {
				delete(e.secondaries, base)
				if base.State() == core.StateSecondaries {
					base.Transition(core.StateActivated, core.ReasonNone)
				}
			}
		case core.SessionDeactivated:
			delete(e.secondaries, base)
			if st := base.State(); st == core.StateSecondaries || st == core.StateActivated {
				base.Transition(core.StateFailed, core.ReasonSecondaryConnectionFailed)
			}
		default:
		}
		return
	}
}
