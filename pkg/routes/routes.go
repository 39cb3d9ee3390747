// Package routes implements default-route candidate selection for the
// policy engine. Candidates are scored by route metric with stickiness for
// the previous winner on ties, so that an established default does not
// flap when an equivalent device shows up.
package routes

import (
	"github.com/vireonet/vireo/pkg/core"
)

// Manager is the default core.RouteManager implementation.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) BestDevice(f core.Family, q core.RouteQuery, devices []*core.Device) (*core.Device, *core.ActiveSession) {
	var best *core.Device
	for _, d := range devices {
		if !m.candidate(d, f, q) {
			continue
		}
		if best == nil || m.better(d, best, q.Last) {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	return best, best.ActiveSession()
}

func (m *Manager) candidate(d *core.Device, f core.Family, q core.RouteQuery) bool {
	st := d.State()
	if q.FullyActivated {
		if st != core.StateActivated {
			return false
		}
		cfg := d.IPConfig(f)
		if cfg == nil {
			return false
		}
		if cfg.NeverDefault && !q.IgnoreNeverDefault {
			return false
		}
		return true
	}
	return st >= core.StatePrepare && st <= core.StateActivated
}

// better reports whether a beats b. Lower metric wins; on equal metric the
// previous winner stays, then the lower kernel index decides.
func (m *Manager) better(a, b *core.Device, last *core.Device) bool {
	if a.RouteMetric != b.RouteMetric {
		return a.RouteMetric < b.RouteMetric
	}
	if b == last {
		return false
	}
	if a == last {
		return true
	}
	return a.Index < b.Index
}

// BestVPN returns the most recently added activated VPN session holding a
// configuration for the family.
func (m *Manager) BestVPN(f core.Family, sessions []*core.ActiveSession) *core.ActiveSession {
	var best *core.ActiveSession
	for _, s := range sessions {
		if !s.IsVPN() || s.State() != core.SessionActivated {
			continue
		}
		if s.IPConfig(f) == nil {
			continue
		}
		best = s
	}
	return best
}
