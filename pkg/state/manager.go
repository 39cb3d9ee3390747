// Package state holds the in-memory reference implementations of the
// manager and the settings store that the policy engine is wired against.
// The daemon feeds them from the device and persistence layers; tests use
// them directly as scenario drivers.
package state

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

// Manager implements core.Manager.
type Manager struct {
	devices  []*core.Device
	sessions []*core.ActiveSession

	hostname   string
	sleeping   bool
	networking bool

	pathSeq int

	deviceAdded    *core.Signal[*core.Device]
	deviceRemoved  *core.Signal[*core.Device]
	sessionAdded   *core.Signal[*core.ActiveSession]
	sessionRemoved *core.Signal[*core.ActiveSession]
	hostnameCh     *core.Signal[struct{}]
	sleepingCh     *core.Signal[struct{}]
	networkingCh   *core.Signal[struct{}]
}

func NewManager() *Manager {
	return &Manager{
		networking:     true,
		deviceAdded:    core.NewSignal[*core.Device](),
		deviceRemoved:  core.NewSignal[*core.Device](),
		sessionAdded:   core.NewSignal[*core.ActiveSession](),
		sessionRemoved: core.NewSignal[*core.ActiveSession](),
		hostnameCh:     core.NewSignal[struct{}](),
		sleepingCh:     core.NewSignal[struct{}](),
		networkingCh:   core.NewSignal[struct{}](),
	}
}

func (m *Manager) Devices() []*core.Device {
	out := make([]*core.Device, len(m.devices))
	copy(out, m.devices)
	return out
}

func (m *Manager) ActiveSessions() []*core.ActiveSession {
	out := make([]*core.ActiveSession, len(m.sessions))
	copy(out, m.sessions)
	return out
}

func (m *Manager) AddDevice(d *core.Device) {
	m.devices = append(m.devices, d)
	m.deviceAdded.Emit(d)
}

func (m *Manager) RemoveDevice(d *core.Device) {
	for i, dd := range m.devices {
		if dd == d {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			m.deviceRemoved.Emit(d)
			return
		}
	}
}

// Activate creates a session for the profile. The actual link bring-up is
// the device layer's business; it advances the device's state machine and
// the session follows.
func (m *Manager) Activate(ctx context.Context, p *core.Profile, specificObject string, d *core.Device, subject core.Subject, actType core.ActivationType) (*core.ActiveSession, error) {
	if p == nil {
		return nil, fmt.Errorf("activate without a profile")
	}
	if d != nil && d.ActiveSession() != nil && !p.IsVPN() {
		return nil, fmt.Errorf("device %s is busy", d.Iface)
	}
	m.pathSeq++
	s := core.NewSession(p, fmt.Sprintf("/net/vireo/ActiveSession/%d", m.pathSeq), subject, actType)
	if d != nil && !p.IsVPN() {
		s.BindDevice(d)
		d.SetActiveSession(s)
	}
	m.sessions = append(m.sessions, s)
	dlog.Infof(ctx, "activating %q (%s, %s) as %s", p.ID, actType, subject, s.Path)
	m.sessionAdded.Emit(s)
	return s, nil
}

func (m *Manager) Deactivate(ctx context.Context, path string, reason core.StateReason) error {
	for _, s := range m.sessions {
		if s.Path == path {
			dlog.Infof(ctx, "deactivating %s (%s)", path, reason)
			s.SetState(core.SessionDeactivated, reason)
			m.releaseSession(s)
			return nil
		}
	}
	return fmt.Errorf("no active session %s", path)
}

func (m *Manager) releaseSession(s *core.ActiveSession) {
	for i, ss := range m.sessions {
		if ss == s {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			break
		}
	}
	if d := s.Device(); d != nil && d.ActiveSession() == s {
		d.SetActiveSession(nil)
	}
	m.sessionRemoved.Emit(s)
}

func (m *Manager) ConnectionDevice(p *core.Profile) *core.Device {
	for _, s := range m.sessions {
		if s.Profile == p {
			return s.Device()
		}
	}
	return nil
}

func (m *Manager) Hostname() string {
	return m.hostname
}

// SetHostname installs the administratively configured hostname.
func (m *Manager) SetHostname(name string) {
	if m.hostname == name {
		return
	}
	m.hostname = name
	m.hostnameCh.Emit(struct{}{})
}

func (m *Manager) Sleeping() bool {
	return m.sleeping
}

func (m *Manager) SetSleeping(sleeping bool) {
	if m.sleeping == sleeping {
		return
	}
	m.sleeping = sleeping
	m.sleepingCh.Emit(struct{}{})
}

func (m *Manager) NetworkingEnabled() bool {
	return m.networking
}

func (m *Manager) SetNetworkingEnabled(enabled bool) {
	if m.networking == enabled {
		return
	}
	m.networking = enabled
	m.networkingCh.Emit(struct{}{})
}

func (m *Manager) DeviceAdded() *core.Signal[*core.Device]           { return m.deviceAdded }
func (m *Manager) DeviceRemoved() *core.Signal[*core.Device]         { return m.deviceRemoved }
func (m *Manager) SessionAdded() *core.Signal[*core.ActiveSession]   { return m.sessionAdded }
func (m *Manager) SessionRemoved() *core.Signal[*core.ActiveSession] { return m.sessionRemoved }
func (m *Manager) HostnameChanged() *core.Signal[struct{}]           { return m.hostnameCh }
func (m *Manager) SleepingChanged() *core.Signal[struct{}]           { return m.sleepingCh }
func (m *Manager) NetworkingChanged() *core.Signal[struct{}]         { return m.networkingCh }
