package core

// DeviceStateChange is emitted on every device state transition.
type DeviceStateChange struct {
	New    DeviceState
	Old    DeviceState
	Reason StateReason
}

// ConfigChange carries an IP configuration replacement. Either field may be
// nil.
type ConfigChange struct {
	New *IPConfig
	Old *IPConfig
}

// Device is one managed network interface. Instances are owned by the
// device layer; the engine reads them and subscribes to their signals but
// mutates device state only through Transition.
type Device struct {
	ID       string
	Iface    string
	Index    int
	Type     string
	Software bool

	// RouteMetric orders default-route candidates kernel-style; lower is
	// better.
	RouteMetric int

	state              DeviceState
	autoconnectAllowed bool
	ip4, ip6           *IPConfig
	session            *ActiveSession
	assumeUUID         string
	pendingActions     map[string]struct{}

	// CompatibleProfile lets the device layer decide whether a profile can
	// be activated here and name an optional specific object (such as an
	// access-point path). When nil, a plain type match is used.
	CompatibleProfile func(p *Profile) (specificObject string, ok bool)

	// AvailableForUser reports whether the profile passes a user-request
	// availability check on this device. When nil, any compatible profile
	// is available.
	AvailableForUser func(p *Profile) bool

	StateChanged       *Signal[DeviceStateChange]
	IP4Changed         *Signal[ConfigChange]
	IP6Changed         *Signal[ConfigChange]
	AutoconnectChanged *Signal[struct{}]
	RecheckAutoConnect *Signal[struct{}]
}

// DefaultRouteMetric is the conventional metric for a device type.
func DefaultRouteMetric(devType string) int {
	switch devType {
	case ProfileTypeEthernet:
		return 100
	case ProfileTypeVPN:
		return 50
	case ProfileTypeWifi:
		return 600
	default:
		return 700
	}
}

func NewDevice(id, iface string, index int, devType string) *Device {
	return &Device{
		ID:                 id,
		Iface:              iface,
		Index:              index,
		Type:               devType,
		RouteMetric:        DefaultRouteMetric(devType),
		state:              StateDisconnected,
		autoconnectAllowed: true,
		pendingActions:     make(map[string]struct{}),
		StateChanged:       NewSignal[DeviceStateChange](),
		IP4Changed:         NewSignal[ConfigChange](),
		IP6Changed:         NewSignal[ConfigChange](),
		AutoconnectChanged: NewSignal[struct{}](),
		RecheckAutoConnect: NewSignal[struct{}](),
	}
}

func (d *Device) State() DeviceState {
	return d.state
}

// Transition moves the device to a new state and emits the state-changed
// signal. It is the only sanctioned way to change device state, for the
// device layer and the policy engine alike.
func (d *Device) Transition(state DeviceState, reason StateReason) {
	if state == d.state {
		return
	}
	old := d.state
	d.state = state
	d.StateChanged.Emit(DeviceStateChange{New: state, Old: old, Reason: reason})
}

func (d *Device) AutoconnectAllowed() bool {
	return d.autoconnectAllowed
}

func (d *Device) SetAutoconnectAllowed(allowed bool) {
	if d.autoconnectAllowed == allowed {
		return
	}
	d.autoconnectAllowed = allowed
	d.AutoconnectChanged.Emit(struct{}{})
}

func (d *Device) IPConfig(f Family) *IPConfig {
	if f == FamilyV4 {
		return d.ip4
	}
	return d.ip6
}

func (d *Device) SetIPConfig(f Family, cfg *IPConfig) {
	if f == FamilyV4 {
		old := d.ip4
		d.ip4 = cfg
		d.IP4Changed.Emit(ConfigChange{New: cfg, Old: old})
	} else {
		old := d.ip6
		d.ip6 = cfg
		d.IP6Changed.Emit(ConfigChange{New: cfg, Old: old})
	}
}

// ActiveSession is the session currently bound to this device, nil when
// none.
func (d *Device) ActiveSession() *ActiveSession {
	return d.session
}

func (d *Device) SetActiveSession(s *ActiveSession) {
	d.session = s
}

// AppliedProfile is the profile in effect on the device, nil when no
// session is bound.
func (d *Device) AppliedProfile() *Profile {
	if d.session == nil {
		return nil
	}
	return d.session.Profile
}

// SetAssumeUUID stores a hint that an existing link configuration matches
// the given profile.
func (d *Device) SetAssumeUUID(uuid string) {
	d.assumeUUID = uuid
}

// TakeAssumeUUID consumes and returns the assume hint.
func (d *Device) TakeAssumeUUID() string {
	u := d.assumeUUID
	d.assumeUUID = ""
	return u
}

// Pending-action markers let external waiters observe that the device has
// unfinished policy work, such as a queued auto-activation check.
func (d *Device) AddPendingAction(name string) {
	d.pendingActions[name] = struct{}{}
}

func (d *Device) RemovePendingAction(name string) {
	delete(d.pendingActions, name)
}

func (d *Device) HasPendingAction(name string) bool {
	_, ok := d.pendingActions[name]
	return ok
}

// ProfileCompatible checks device compatibility and yields the specific
// object to activate with, if any.
func (d *Device) ProfileCompatible(p *Profile) (string, bool) {
	if d.CompatibleProfile != nil {
		return d.CompatibleProfile(p)
	}
	if p.Type == d.Type {
		return "", true
	}
	return "", false
}

// ProfileAvailableForUser runs the user-request availability check.
func (d *Device) ProfileAvailableForUser(p *Profile) bool {
	if d.AvailableForUser != nil {
		return d.AvailableForUser(p)
	}
	_, ok := d.ProfileCompatible(p)
	return ok
}
