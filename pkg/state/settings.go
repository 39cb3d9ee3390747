package state

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vireonet/vireo/pkg/core"
)

// HostnameWriter commits hostnames to the system. Satisfied by
// hostctl.Writer.
type HostnameWriter interface {
	SetHostname(ctx context.Context, name string) error
}

// Settings implements core.Settings.
type Settings struct {
	profiles []*core.Profile
	hostname HostnameWriter

	profileAdded   *core.Signal[*core.Profile]
	profileUpdated *core.Signal[core.ProfileUpdate]
	profileRemoved *core.Signal[*core.Profile]
	visibilityCh   *core.Signal[*core.Profile]
	agentCh        *core.Signal[struct{}]
}

func NewSettings(hostname HostnameWriter) *Settings {
	return &Settings{
		hostname:       hostname,
		profileAdded:   core.NewSignal[*core.Profile](),
		profileUpdated: core.NewSignal[core.ProfileUpdate](),
		profileRemoved: core.NewSignal[*core.Profile](),
		visibilityCh:   core.NewSignal[*core.Profile](),
		agentCh:        core.NewSignal[struct{}](),
	}
}

func (s *Settings) ProfileByUUID(u string) *core.Profile {
	for _, p := range s.profiles {
		if p.UUID == u {
			return p
		}
	}
	return nil
}

func (s *Settings) Profiles() []*core.Profile {
	out := make([]*core.Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// AddProfile stores a profile, minting a UUID when it carries none.
func (s *Settings) AddProfile(p *core.Profile) error {
	if p.UUID == "" {
		p.UUID = uuid.NewString()
	} else if _, err := uuid.Parse(p.UUID); err != nil {
		return errors.Wrapf(err, "profile %q has a malformed uuid", p.ID)
	}
	if s.ProfileByUUID(p.UUID) != nil {
		return errors.Errorf("duplicate profile uuid %s", p.UUID)
	}
	s.profiles = append(s.profiles, p)
	s.profileAdded.Emit(p)
	return nil
}

// NotifyUpdated announces a profile mutation.
func (s *Settings) NotifyUpdated(p *core.Profile, byUser bool) {
	s.profileUpdated.Emit(core.ProfileUpdate{Profile: p, ByUser: byUser})
}

func (s *Settings) RemoveProfile(p *core.Profile) {
	for i, pp := range s.profiles {
		if pp == p {
			s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
			s.profileRemoved.Emit(p)
			return
		}
	}
}

func (s *Settings) SetVisible(p *core.Profile, visible bool) {
	if p.Visible == visible {
		return
	}
	p.Visible = visible
	s.visibilityCh.Emit(p)
}

// RegisterAgent announces that a secret agent connected.
func (s *Settings) RegisterAgent() {
	s.agentCh.Emit(struct{}{})
}

// SetTransientHostname commits the hostname asynchronously; the completion
// callback receives the outcome. Without a hostname writer nothing is
// written and the callback runs at once with a nil error.
func (s *Settings) SetTransientHostname(ctx context.Context, name string, done func(error)) {
	if s.hostname == nil {
		if done != nil {
			done(nil)
		}
		return
	}
	go func() {
		err := s.hostname.SetHostname(ctx, name)
		if done != nil {
			done(err)
		}
	}()
}

func (s *Settings) ProfileAdded() *core.Signal[*core.Profile]        { return s.profileAdded }
func (s *Settings) ProfileUpdated() *core.Signal[core.ProfileUpdate] { return s.profileUpdated }
func (s *Settings) ProfileRemoved() *core.Signal[*core.Profile]      { return s.profileRemoved }
func (s *Settings) VisibilityChanged() *core.Signal[*core.Profile]   { return s.visibilityCh }
func (s *Settings) AgentRegistered() *core.Signal[struct{}]          { return s.agentCh }

// profileSpec is the YAML shape of a stored profile.
type profileSpec struct {
	UUID        string   `yaml:"uuid"`
	ID          string   `yaml:"id"`
	Type        string   `yaml:"type"`
	Priority    int      `yaml:"priority"`
	Autoconnect *bool    `yaml:"autoconnect"`
	Master      string   `yaml:"master"`
	SlaveType   string   `yaml:"slave-type"`
	Secondaries []string `yaml:"secondaries"`
}

// LoadProfiles reads stored profiles from a YAML file and adds them.
func (s *Settings) LoadProfiles(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var specs []profileSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return errors.Wrapf(err, "malformed profile file %s", path)
	}
	for _, spec := range specs {
		autoconnect := true
		if spec.Autoconnect != nil {
			autoconnect = *spec.Autoconnect
		}
		p := &core.Profile{
			UUID:                spec.UUID,
			ID:                  spec.ID,
			Type:                spec.Type,
			AutoconnectPriority: spec.Priority,
			Autoconnect:         autoconnect,
			Visible:             true,
			Master:              spec.Master,
			SlaveType:           spec.SlaveType,
			SecondaryUUIDs:      spec.Secondaries,
			LastConnected:       time.Time{},
		}
		if err := s.AddProfile(p); err != nil {
			return err
		}
	}
	return nil
}
