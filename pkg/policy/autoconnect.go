package policy

import (
	"sort"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

// autoActivateDevice runs the deferred decision for one device: try to
// assume an already configured link first, then fall back to picking the
// best activatable profile.
func (e *Engine) autoActivateDevice(d *core.Device) {
	ctx := e.ctx
	if d.ActiveSession() != nil {
		return
	}

	if p := e.assumeCandidate(d); p != nil {
		dlog.Infof(ctx, "assuming %q on %s", p.ID, d.Iface)
		if _, err := e.manager.Activate(ctx, p, "", d, core.SubjectInternal, core.ActivationAssume); err != nil {
			dlog.Infof(ctx, "assume of %q on %s failed: %v", p.ID, d.Iface, err)
		}
		return
	}

	p, specific := e.bestAutoconnectProfile(d)
	if p == nil {
		return
	}
	dlog.Infof(ctx, "auto-activating %q on %s", p.ID, d.Iface)
	if _, err := e.manager.Activate(ctx, p, specific, d, core.SubjectInternal, core.ActivationFull); err != nil {
		// Dropped on purpose; retry bookkeeping happens on the device's
		// subsequent state trajectory.
		dlog.Infof(ctx, "auto-activation of %q on %s failed: %v", p.ID, d.Iface, err)
	}
}

// assumeCandidate consumes the device's assume hint and validates it. The
// profile is accepted when nothing else holds it, it is available here,
// the platform link exists, and the link's enslavement matches the
// profile's: a slave profile needs a link that still reports a master, a
// standalone profile needs an up link with no master.
func (e *Engine) assumeCandidate(d *core.Device) *core.Profile {
	uuid := d.TakeAssumeUUID()
	if uuid == "" {
		return nil
	}
	ctx := e.ctx
	p := e.settings.ProfileByUUID(uuid)
	if p == nil {
		dlog.Debugf(ctx, "assume hint %s on %s: no such profile", uuid, d.Iface)
		return nil
	}
	if other := e.manager.ConnectionDevice(p); other != nil && other != d {
		dlog.Debugf(ctx, "assume hint %q on %s: profile in use on %s", p.ID, d.Iface, other.Iface)
		return nil
	}
	if !d.ProfileAvailableForUser(p) {
		return nil
	}
	if e.platform == nil {
		return nil
	}
	link := e.platform.Link(d.Index)
	if link == nil {
		return nil
	}
	if p.IsSlave() {
		if link.Master == 0 {
			return nil
		}
	} else if !link.Up || link.Master != 0 {
		return nil
	}
	return p
}

// bestAutoconnectProfile scans the activatable profiles in (priority,
// recency) order and returns the first one both the profile gate and the
// device admit, skipping profiles already bound to a device. The sort is
// stable so equal-priority profiles keep their recency order.
func (e *Engine) bestAutoconnectProfile(d *core.Device) (*core.Profile, string) {
	profiles := e.settings.Profiles()
	sort.SliceStable(profiles, func(i, j int) bool {
		pi, pj := profiles[i], profiles[j]
		if pi.AutoconnectPriority != pj.AutoconnectPriority {
			return pi.AutoconnectPriority > pj.AutoconnectPriority
		}
		return pi.LastConnected.After(pj.LastConnected)
	})
	for _, p := range profiles {
		if !p.CanAutoconnect() {
			continue
		}
		if e.manager.ConnectionDevice(p) != nil {
			continue
		}
		if specific, ok := d.ProfileCompatible(p); ok {
			return p, specific
		}
	}
	return nil, ""
}
