package core

// SessionStateChange is emitted when an active session changes state.
type SessionStateChange struct {
	New    SessionState
	Old    SessionState
	Reason StateReason
}

// ActiveSession is the runtime instance of a profile being brought up, or
// in effect, on a device. Instances are owned by the manager.
//
// A session is either a plain device session or a VPN session; the VPN
// field is the variant tag. VPN sessions may start without a bound device
// and get one late, when default-route arbitration picks the device the
// tunnel runs over.
type ActiveSession struct {
	Profile *Profile
	Path    string
	Subject Subject
	Type    ActivationType

	// VPN is non-nil for VPN sessions.
	VPN *VPNSession

	device    *Device
	state     SessionState
	defaultV4 bool
	defaultV6 bool

	StateChanged *Signal[SessionStateChange]
}

// VPNSession holds the VPN-only parts of an active session.
type VPNSession struct {
	ip4, ip6 *IPConfig

	// InternalStateChanged mirrors the VPN plugin's own state machine.
	InternalStateChanged *Signal[SessionStateChange]

	// RetryAfterFailure asks the engine to re-activate this VPN's profile.
	RetryAfterFailure *Signal[struct{}]
}

func NewSession(p *Profile, path string, subject Subject, actType ActivationType) *ActiveSession {
	s := &ActiveSession{
		Profile:      p,
		Path:         path,
		Subject:      subject,
		Type:         actType,
		state:        SessionActivating,
		StateChanged: NewSignal[SessionStateChange](),
	}
	if p.IsVPN() {
		s.VPN = &VPNSession{
			InternalStateChanged: NewSignal[SessionStateChange](),
			RetryAfterFailure:    NewSignal[struct{}](),
		}
	}
	return s
}

func (s *ActiveSession) IsVPN() bool {
	return s.VPN != nil
}

func (s *ActiveSession) State() SessionState {
	return s.state
}

func (s *ActiveSession) SetState(state SessionState, reason StateReason) {
	if state == s.state {
		return
	}
	old := s.state
	s.state = state
	s.StateChanged.Emit(SessionStateChange{New: state, Old: old, Reason: reason})
}

// Device is the device this session is bound to; nil for a VPN that has
// not been late-bound yet.
func (s *ActiveSession) Device() *Device {
	return s.device
}

func (s *ActiveSession) BindDevice(d *Device) {
	s.device = d
}

func (s *ActiveSession) Default(f Family) bool {
	if f == FamilyV4 {
		return s.defaultV4
	}
	return s.defaultV6
}

func (s *ActiveSession) SetDefault(f Family, isDefault bool) {
	if f == FamilyV4 {
		s.defaultV4 = isDefault
	} else {
		s.defaultV6 = isDefault
	}
}

// IPConfig returns the VPN's pushed configuration for the family, nil for
// device sessions or when the VPN has none.
func (s *ActiveSession) IPConfig(f Family) *IPConfig {
	if s.VPN == nil {
		return nil
	}
	if f == FamilyV4 {
		return s.VPN.ip4
	}
	return s.VPN.ip6
}

func (s *ActiveSession) SetVPNConfig(f Family, cfg *IPConfig) {
	if s.VPN == nil {
		return
	}
	if f == FamilyV4 {
		s.VPN.ip4 = cfg
	} else {
		s.VPN.ip6 = cfg
	}
}
