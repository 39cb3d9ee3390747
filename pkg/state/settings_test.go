package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireonet/vireo/pkg/core"
)

func TestAddProfileMintsUUID(t *testing.T) {
	s := NewSettings(nil)
	p := &core.Profile{ID: "E1", Type: core.ProfileTypeEthernet}
	require.NoError(t, s.AddProfile(p))
	_, err := uuid.Parse(p.UUID)
	assert.NoError(t, err)
	assert.Equal(t, p, s.ProfileByUUID(p.UUID))
}

func TestAddProfileRejectsBadAndDuplicateUUIDs(t *testing.T) {
	s := NewSettings(nil)
	assert.Error(t, s.AddProfile(&core.Profile{ID: "bad", UUID: "not-a-uuid"}))

	u := uuid.NewString()
	require.NoError(t, s.AddProfile(&core.Profile{ID: "a", UUID: u}))
	assert.Error(t, s.AddProfile(&core.Profile{ID: "b", UUID: u}))
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: office
  type: ethernet
  priority: 10
- id: corp-vpn
  type: vpn
  autoconnect: false
- id: uplink
  type: ethernet
  secondaries: []
`), 0o600))

	s := NewSettings(nil)
	added := 0
	s.ProfileAdded().Connect(func(*core.Profile) { added++ })
	require.NoError(t, s.LoadProfiles(path))

	profiles := s.Profiles()
	require.Len(t, profiles, 3)
	assert.Equal(t, 3, added)

	office := profiles[0]
	assert.Equal(t, "office", office.ID)
	assert.Equal(t, 10, office.AutoconnectPriority)
	assert.True(t, office.Autoconnect)
	assert.True(t, office.Visible)

	vpn := profiles[1]
	assert.True(t, vpn.IsVPN())
	assert.False(t, vpn.Autoconnect)
}

func TestLoadProfilesMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))
	assert.Error(t, NewSettings(nil).LoadProfiles(path))
}

func TestVisibilityChangeEmitsOnChangeOnly(t *testing.T) {
	s := NewSettings(nil)
	p := &core.Profile{ID: "E1", Visible: true}
	require.NoError(t, s.AddProfile(p))

	fired := 0
	s.VisibilityChanged().Connect(func(*core.Profile) { fired++ })
	s.SetVisible(p, true)
	assert.Equal(t, 0, fired)
	s.SetVisible(p, false)
	assert.Equal(t, 1, fired)
	assert.False(t, p.Visible)
}
