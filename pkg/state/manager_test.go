package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

func TestActivateBindsDeviceSessions(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	m := NewManager()
	d := core.NewDevice("id", "eth0", 1, core.ProfileTypeEthernet)
	m.AddDevice(d)
	p := &core.Profile{UUID: "u1", ID: "E1", Type: core.ProfileTypeEthernet}

	s, err := m.Activate(ctx, p, "", d, core.SubjectInternal, core.ActivationFull)
	require.NoError(t, err)
	assert.Equal(t, d, s.Device())
	assert.Equal(t, s, d.ActiveSession())
	assert.Equal(t, d, m.ConnectionDevice(p))

	// The device is busy now.
	_, err = m.Activate(ctx, p, "", d, core.SubjectInternal, core.ActivationFull)
	assert.Error(t, err)
}

func TestActivateVPNIsUnbound(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	m := NewManager()
	d := core.NewDevice("id", "eth0", 1, core.ProfileTypeEthernet)
	m.AddDevice(d)
	p := &core.Profile{UUID: "u1", ID: "V", Type: core.ProfileTypeVPN}

	s, err := m.Activate(ctx, p, "", d, core.SubjectUser, core.ActivationFull)
	require.NoError(t, err)
	assert.True(t, s.IsVPN())
	assert.Nil(t, s.Device(), "VPNs are late-bound by policy")
	assert.Nil(t, d.ActiveSession())
}

func TestDeactivateReleases(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	m := NewManager()
	d := core.NewDevice("id", "eth0", 1, core.ProfileTypeEthernet)
	m.AddDevice(d)
	p := &core.Profile{UUID: "u1", ID: "E1", Type: core.ProfileTypeEthernet}

	s, err := m.Activate(ctx, p, "", d, core.SubjectInternal, core.ActivationFull)
	require.NoError(t, err)

	removed := 0
	m.SessionRemoved().Connect(func(*core.ActiveSession) { removed++ })
	require.NoError(t, m.Deactivate(ctx, s.Path, core.ReasonUserRequested))

	assert.Equal(t, core.SessionDeactivated, s.State())
	assert.Nil(t, d.ActiveSession())
	assert.Empty(t, m.ActiveSessions())
	assert.Equal(t, 1, removed)

	assert.Error(t, m.Deactivate(ctx, s.Path, core.ReasonNone), "unknown path")
}
