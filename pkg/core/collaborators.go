package core

import (
	"context"
)

// ProfileUpdate is emitted when a stored profile changes. ByUser is set
// when the mutation was an explicit user edit, which resets autoconnect
// blocking.
type ProfileUpdate struct {
	Profile *Profile
	ByUser  bool
}

// Manager is the link manager that owns devices and active sessions. The
// policy engine never outlives it.
type Manager interface {
	// Activate brings profile up on device. Device may be nil for VPNs
	// that inherit a base device later. SpecificObject is an optional
	// device-layer identifier such as an access-point path.
	Activate(ctx context.Context, p *Profile, specificObject string, d *Device, subject Subject, actType ActivationType) (*ActiveSession, error)

	// Deactivate takes down the session with the given exported path.
	Deactivate(ctx context.Context, path string, reason StateReason) error

	Devices() []*Device
	ActiveSessions() []*ActiveSession

	// ConnectionDevice returns the device currently bound to the profile,
	// nil when the profile is not in use.
	ConnectionDevice(p *Profile) *Device

	// Hostname is the administratively configured hostname, possibly empty
	// or a well-known unset token.
	Hostname() string

	Sleeping() bool
	NetworkingEnabled() bool

	DeviceAdded() *Signal[*Device]
	DeviceRemoved() *Signal[*Device]
	SessionAdded() *Signal[*ActiveSession]
	SessionRemoved() *Signal[*ActiveSession]
	HostnameChanged() *Signal[struct{}]
	SleepingChanged() *Signal[struct{}]
	NetworkingChanged() *Signal[struct{}]
}

// Settings is the connection-profile store.
type Settings interface {
	ProfileByUUID(uuid string) *Profile
	Profiles() []*Profile

	// SetTransientHostname commits a hostname. The completion callback
	// receives the outcome, possibly on another goroutine.
	SetTransientHostname(ctx context.Context, name string, done func(error))

	ProfileAdded() *Signal[*Profile]
	ProfileUpdated() *Signal[ProfileUpdate]
	ProfileRemoved() *Signal[*Profile]
	VisibilityChanged() *Signal[*Profile]
	AgentRegistered() *Signal[struct{}]
}

// DNSPriority tags a registered configuration so the DNS manager can order
// resolvers; VPN configurations shadow the best device's.
type DNSPriority int

const (
	DNSPriorityDefault DNSPriority = iota
	DNSPriorityBestDevice
	DNSPriorityVPN
)

func (p DNSPriority) String() string {
	switch p {
	case DNSPriorityVPN:
		return "vpn"
	case DNSPriorityBestDevice:
		return "best-device"
	default:
		return "default"
	}
}

// DNSManager receives resolver configuration. Begin/EndUpdates bracket a
// batch; the manager reference-counts nesting and flushes at the outermost
// end.
type DNSManager interface {
	BeginUpdates(ctx context.Context, tag string)
	EndUpdates(ctx context.Context, tag string)

	SetIPConfig(ctx context.Context, iface string, cfg *IPConfig, prio DNSPriority)
	RemoveIPConfig(ctx context.Context, cfg *IPConfig)

	// SetInitialHostname records the hostname found at startup so domain
	// extraction works before the engine's first update.
	SetInitialHostname(name string)

	// SetHostname informs the manager of the current hostname so it can
	// extract the domain suffix into its search list.
	SetHostname(ctx context.Context, name string)

	ConfigChanged() *Signal[struct{}]
}

// Firewall coordinates zone placement with the firewall daemon.
type Firewall interface {
	UpdateZone(ctx context.Context, d *Device)
	Started() *Signal[struct{}]
}

// DispatchAction names a dispatcher script hook.
type DispatchAction string

const ActionHostname DispatchAction = "hostname"

// Dispatcher invokes external hook scripts.
type Dispatcher interface {
	Call(ctx context.Context, action DispatchAction)
}

// Platform is the kernel shim.
type Platform interface {
	// Link returns kernel link attributes for an interface index, nil when
	// the link does not exist.
	Link(index int) *Link

	GetHostname() (string, error)
	SetHostname(name string) error
}

// RouteQuery parameterizes best-device selection.
type RouteQuery struct {
	// FullyActivated restricts candidates to devices that have completed
	// activation.
	FullyActivated bool

	// IgnoreNeverDefault admits configurations marked never-default. Used
	// for DNS, which still wants the best resolver even when the device
	// must not carry the default route.
	IgnoreNeverDefault bool

	// Last is the previous default device, kept sticky on ties.
	Last *Device
}

// RouteManager picks the best device and session for a family out of a
// dynamic candidate set.
type RouteManager interface {
	BestDevice(f Family, q RouteQuery, devices []*Device) (*Device, *ActiveSession)

	// BestVPN returns the best active VPN session holding a configuration
	// for the family, nil when none qualifies.
	BestVPN(f Family, sessions []*ActiveSession) *ActiveSession
}
