// Package policy is the decision core of the link manager. It consumes
// events from the manager, the settings store, devices, sessions, the DNS
// manager and the firewall, and decides which profile to auto-activate on
// which device, which device carries the default route and DNS per address
// family, which secondary (VPN) profiles to chain, and what the system
// hostname should be.
//
// The engine performs no I/O of its own. Everything runs on a single
// cooperative task queue; the only asynchronous work is reverse-DNS
// resolution and the activate/deactivate calls on the manager, whose
// completion is delivered back as events.
package policy

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/vireonet/vireo/pkg/core"
	"github.com/vireonet/vireo/pkg/rdns"
	"github.com/vireonet/vireo/pkg/task"
)

// Property identifies one of the engine's observable fields.
type Property int

const (
	PropDefaultDevice4 Property = iota
	PropDefaultDevice6
	PropActivatingDevice4
	PropActivatingDevice6
)

func (p Property) String() string {
	switch p {
	case PropDefaultDevice4:
		return "default-device-v4"
	case PropDefaultDevice6:
		return "default-device-v6"
	case PropActivatingDevice4:
		return "activating-device-v4"
	default:
		return "activating-device-v6"
	}
}

// PropertyChange is emitted when an observable property changes value.
type PropertyChange struct {
	Property Property
	Device   *core.Device
}

// Config carries the engine's constructor dependencies. Manager and
// Settings are required; the engine does not extend their lifetime.
type Config struct {
	Manager    core.Manager
	Settings   core.Settings
	DNS        core.DNSManager
	Firewall   core.Firewall
	Dispatcher core.Dispatcher
	Platform   core.Platform
	Routes     core.RouteManager
	Resolver   rdns.Resolver
	Scheduler  task.Scheduler
}

// Engine is the policy engine. Construct with New, wire with Start, and
// tear down with Close. All methods must be called on the scheduler's
// goroutine.
type Engine struct {
	manager  core.Manager
	settings core.Settings
	dns      core.DNSManager
	firewall core.Firewall
	dispatch core.Dispatcher
	platform core.Platform
	routes   core.RouteManager
	resolver rdns.Resolver
	sched    task.Scheduler

	// ctx is the engine's lifetime context, installed by Start so that
	// signal handlers, which carry no context of their own, can log and
	// call collaborators.
	ctx context.Context

	devices     map[*core.Device][]core.Subscription
	sessions    map[*core.ActiveSession][]core.Subscription
	pending     map[*core.Device]*task.Token
	secondaries map[*core.Device]*secondariesEntry

	retryTimer  *task.Token
	activateAll *task.Token

	arb      [2]familyArbiter
	notify   notifier
	hostname hostnameState

	subs   []core.Subscription
	closed bool

	// PropertyChanged emits once per actual value change of an observable
	// property.
	PropertyChanged *core.Signal[PropertyChange]
}

func New(cfg Config) (*Engine, error) {
	if cfg.Manager == nil || cfg.Settings == nil {
		return nil, errors.New("policy engine requires a manager and a settings store")
	}
	if cfg.DNS == nil || cfg.Routes == nil || cfg.Scheduler == nil {
		return nil, errors.New("policy engine requires a DNS manager, a route manager and a scheduler")
	}
	e := &Engine{
		manager:         cfg.Manager,
		settings:        cfg.Settings,
		dns:             cfg.DNS,
		firewall:        cfg.Firewall,
		dispatch:        cfg.Dispatcher,
		platform:        cfg.Platform,
		routes:          cfg.Routes,
		resolver:        cfg.Resolver,
		sched:           cfg.Scheduler,
		devices:         make(map[*core.Device][]core.Subscription),
		sessions:        make(map[*core.ActiveSession][]core.Subscription),
		pending:         make(map[*core.Device]*task.Token),
		secondaries:     make(map[*core.Device]*secondariesEntry),
		PropertyChanged: core.NewSignal[PropertyChange](),
	}
	return e, nil
}

// Start captures the original hostname, subscribes to all event sources and
// folds the manager's current devices and sessions into the bookkeeping.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx

	if e.platform != nil {
		name, err := e.platform.GetHostname()
		if err != nil {
			dlog.Warnf(ctx, "could not read system hostname: %v", err)
		} else {
			e.hostname.original = name
		}
	}
	e.dns.SetInitialHostname(e.hostname.original)

	m := e.manager
	e.subs = append(e.subs,
		m.DeviceAdded().Connect(func(d *core.Device) { e.onDeviceAdded(d) }),
		m.DeviceRemoved().Connect(func(d *core.Device) { e.onDeviceRemoved(d) }),
		m.SessionAdded().Connect(func(s *core.ActiveSession) { e.onSessionAdded(s) }),
		m.SessionRemoved().Connect(func(s *core.ActiveSession) { e.onSessionRemoved(s) }),
		m.HostnameChanged().Connect(func(struct{}) { e.updateSystemHostname("configured hostname changed") }),
		m.SleepingChanged().Connect(func(struct{}) { e.onSleepingChanged() }),
		m.NetworkingChanged().Connect(func(struct{}) { e.onSleepingChanged() }),
	)

	s := e.settings
	e.subs = append(e.subs,
		s.ProfileAdded().Connect(func(*core.Profile) { e.scheduleActivateAll() }),
		s.ProfileUpdated().Connect(func(u core.ProfileUpdate) { e.onProfileUpdated(u) }),
		s.ProfileRemoved().Connect(func(p *core.Profile) { e.onProfileRemoved(p) }),
		s.VisibilityChanged().Connect(func(*core.Profile) { e.scheduleActivateAll() }),
		s.AgentRegistered().Connect(func(struct{}) { e.onAgentRegistered() }),
	)

	e.subs = append(e.subs,
		e.dns.ConfigChanged().Connect(func(struct{}) { e.onDNSConfigChanged() }),
	)
	if e.firewall != nil {
		e.subs = append(e.subs,
			e.firewall.Started().Connect(func(struct{}) { e.onFirewallStarted() }),
		)
	}

	for _, d := range m.Devices() {
		e.registerDevice(d)
	}
	for _, as := range m.ActiveSessions() {
		e.watchSession(as)
	}
	e.scheduleActivateAll()
	e.recomputeNetworking("startup")
}

// Close detaches every subscription and cancels all deferred work. After
// Close returns, no callback fires into the engine again.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	e.hostname.cancelLookup()
	if e.retryTimer != nil {
		e.retryTimer.Cancel()
		e.retryTimer = nil
	}
	if e.activateAll != nil {
		e.activateAll.Cancel()
		e.activateAll = nil
	}
	for d := range e.devices {
		e.clearPending(d)
	}
	for d := range e.devices {
		e.unregisterDevice(d)
	}
	for as := range e.sessions {
		e.unwatchSession(as)
	}
	for _, sub := range e.subs {
		sub.Close()
	}
	e.subs = nil
}

// DefaultDevice is the device carrying the default route and DNS for the
// family, nil when there is none.
func (e *Engine) DefaultDevice(f core.Family) *core.Device {
	return e.arb[f].defaultDevice
}

// ActivatingDevice is the best default-route candidate for the family
// regardless of activation progress.
func (e *Engine) ActivatingDevice(f core.Family) *core.Device {
	return e.arb[f].activatingDevice
}

// recomputeNetworking reruns routing, DNS and hostname arbitration. Every
// DNS-mutating path in it is bracketed by a single update window.
func (e *Engine) recomputeNetworking(why string) {
	ctx := e.ctx
	dlog.Debugf(ctx, "updating networking (%s)", why)
	e.dns.BeginUpdates(ctx, why)
	defer e.dns.EndUpdates(ctx, why)

	for _, f := range core.Families() {
		e.updateRoutingAndDNS(f)
	}
	e.updateActivatingDevices()
	e.updateSystemHostname(why)
}

func (e *Engine) onDeviceAdded(d *core.Device) {
	e.registerDevice(d)
	e.schedulePending(d)
}

func (e *Engine) onDeviceRemoved(d *core.Device) {
	e.clearPending(d)
	e.unregisterDevice(d)
	delete(e.secondaries, d)
	e.recomputeNetworking("device removed")
}

func (e *Engine) onSessionAdded(s *core.ActiveSession) {
	e.watchSession(s)
	e.recomputeNetworking("session added")
}

func (e *Engine) onSessionRemoved(s *core.ActiveSession) {
	e.unwatchSession(s)
	e.recomputeNetworking("session removed")
}

// onDeviceStateChanged is the central dispatch for device transitions. The
// registry installs it with after-semantics, so the device's own handlers
// have already run.
func (e *Engine) onDeviceStateChanged(d *core.Device, ch core.DeviceStateChange) {
	ctx := e.ctx
	dlog.Debugf(ctx, "device %s: %s -> %s (%s)", d.Iface, ch.Old, ch.New, ch.Reason)

	switch ch.New {
	case core.StateFailed:
		if ch.Old >= core.StatePrepare && ch.Old <= core.StateActivated {
			e.noteActivationFailure(d, ch.Reason)
		}
		e.recomputeNetworking("device failed")
	case core.StateActivated:
		e.noteActivationSuccess(d)
		if e.firewall != nil {
			e.firewall.UpdateZone(ctx, d)
		}
		e.recomputeNetworking("device activated")
	case core.StateIPConfig:
		if p := d.AppliedProfile(); p != nil {
			// Reaching ip-config proves the secrets worked.
			p.SetBlockedReason(core.BlockedNone)
		}
	case core.StateSecondaries:
		e.launchSecondaries(d)
	case core.StateDisconnected:
		e.schedulePending(d)
		if ch.Old >= core.StateActivated {
			e.recomputeNetworking("device disconnected")
		}
	case core.StateUnmanaged, core.StateUnavailable:
		e.clearPending(d)
		if ch.Old >= core.StateActivated {
			e.recomputeNetworking("device gone unavailable")
		}
	default:
	}

	if ch.Old == core.StateActivated && ch.New != core.StateActivated &&
		ch.New != core.StateFailed && ch.New != core.StateDisconnected {
		e.recomputeNetworking("device left activated")
	}

	// Every transition may move the best activating candidate.
	e.updateActivatingDevices()
}

func (e *Engine) onDeviceIPChanged(d *core.Device, f core.Family, ch core.ConfigChange) {
	ctx := e.ctx
	e.dns.BeginUpdates(ctx, "device ip config")
	defer e.dns.EndUpdates(ctx, "device ip config")

	if ch.Old != nil {
		e.dns.RemoveIPConfig(ctx, ch.Old)
	}
	if ch.New != nil && d.State() > core.StateUnmanaged {
		e.dns.SetIPConfig(ctx, d.Iface, ch.New, core.DNSPriorityDefault)
	}
	e.updateRoutingAndDNS(f)
	e.updateSystemHostname("device ip config changed")
}

func (e *Engine) onSessionStateChanged(s *core.ActiveSession, ch core.SessionStateChange) {
	e.noteSecondaryOutcome(s, ch)
	switch ch.New {
	case core.SessionActivated, core.SessionDeactivated:
		e.recomputeNetworking("session " + ch.New.String())
	default:
	}
}

func (e *Engine) onVPNRetry(s *core.ActiveSession) {
	ctx := e.ctx
	dlog.Infof(ctx, "VPN %q requested retry after failure", s.Profile.ID)
	if _, err := e.manager.Activate(ctx, s.Profile, "", nil, s.Subject, core.ActivationFull); err != nil {
		dlog.Infof(ctx, "VPN retry of %q failed: %v", s.Profile.ID, err)
	}
}

func (e *Engine) onProfileUpdated(u core.ProfileUpdate) {
	if u.ByUser {
		// A user edit re-arms the profile.
		u.Profile.SetBlockedReason(core.BlockedNone)
		u.Profile.ResetRetries()
	}
	e.scheduleActivateAll()
}

func (e *Engine) onProfileRemoved(p *core.Profile) {
	ctx := e.ctx
	for _, as := range e.manager.ActiveSessions() {
		if as.Profile == p {
			if err := e.manager.Deactivate(ctx, as.Path, core.ReasonConnectionRemoved); err != nil {
				dlog.Infof(ctx, "deactivate of removed profile %q failed: %v", p.ID, err)
			}
		}
	}
}

func (e *Engine) onSleepingChanged() {
	// Reset everything so devices retry on wake.
	e.resetAllRetries(resetScope{})
	if !e.manager.Sleeping() && e.manager.NetworkingEnabled() {
		e.scheduleActivateAll()
	}
}

func (e *Engine) onAgentRegistered() {
	// A freshly registered secret agent may be able to supply the secrets
	// that blocked these profiles.
	e.resetAllRetries(resetScope{onlyNoSecrets: true})
	e.scheduleActivateAll()
}

func (e *Engine) onFirewallStarted() {
	ctx := e.ctx
	for _, d := range e.manager.Devices() {
		if d.State() == core.StateActivated {
			e.firewall.UpdateZone(ctx, d)
		}
	}
}

func (e *Engine) onDNSConfigChanged() {
	// A resolver change invalidates an in-flight reverse lookup.
	if e.hostname.lookupCancel != nil {
		e.hostname.cancelLookup()
		e.updateSystemHostname("dns config changed")
	}
}

// notifier defers observable property emissions while frozen so that a
// multi-family update appears atomic.
type notifier struct {
	frozen int
	queued []PropertyChange
}

func (e *Engine) freezeNotify() {
	e.notify.frozen++
}

func (e *Engine) thawNotify() {
	e.notify.frozen--
	if e.notify.frozen > 0 {
		return
	}
	queued := e.notify.queued
	e.notify.queued = nil
	for _, pc := range queued {
		e.PropertyChanged.Emit(pc)
	}
}

func (e *Engine) emitProperty(p Property, d *core.Device) {
	pc := PropertyChange{Property: p, Device: d}
	if e.notify.frozen > 0 {
		e.notify.queued = append(e.notify.queued, pc)
		return
	}
	e.PropertyChanged.Emit(pc)
}
