package dnsmgr

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

type recordingWriter struct {
	flushes int
	servers map[string][]netip.Addr
	domains map[string][]string
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{
		servers: make(map[string][]netip.Addr),
		domains: make(map[string][]string),
	}
}

func (w *recordingWriter) SetLinkDNS(_ context.Context, iface string, servers []netip.Addr) error {
	w.flushes++
	w.servers[iface] = servers
	return nil
}

func (w *recordingWriter) SetLinkDomains(_ context.Context, iface string, domains []string) error {
	w.domains[iface] = domains
	return nil
}

func cfg(family core.Family, servers ...string) *core.IPConfig {
	c := &core.IPConfig{Family: family}
	for _, s := range servers {
		c.DNSServers = append(c.DNSServers, netip.MustParseAddr(s))
	}
	return c
}

func TestBatchingFlushesOnceAtOuterEnd(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	w := newRecordingWriter()
	m := NewManager(w)

	m.BeginUpdates(ctx, "outer")
	m.BeginUpdates(ctx, "inner")
	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV4, "192.0.2.53"), core.DNSPriorityBestDevice)
	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV6, "2001:db8::53"), core.DNSPriorityBestDevice)
	assert.Equal(t, 0, w.flushes, "no flush inside the window")
	m.EndUpdates(ctx, "inner")
	assert.Equal(t, 0, w.flushes, "no flush at inner end")
	m.EndUpdates(ctx, "outer")
	assert.Equal(t, 1, w.flushes)
	assert.Len(t, w.servers["eth0"], 2)
}

func TestUnbatchedChangeFlushesImmediately(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	w := newRecordingWriter()
	m := NewManager(w)

	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV4, "192.0.2.53"), core.DNSPriorityDefault)
	assert.Equal(t, 1, w.flushes)
}

func TestVPNServersComeFirst(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	w := newRecordingWriter()
	m := NewManager(w)

	m.BeginUpdates(ctx, "t")
	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV4, "192.0.2.53"), core.DNSPriorityBestDevice)
	vpnCfg := cfg(core.FamilyV4, "10.8.0.53")
	vpnCfg.Family = core.FamilyV6 // distinct (iface, family) slot
	m.SetIPConfig(ctx, "eth0", vpnCfg, core.DNSPriorityVPN)
	m.EndUpdates(ctx, "t")

	require.Len(t, w.servers["eth0"], 2)
	assert.Equal(t, netip.MustParseAddr("10.8.0.53"), w.servers["eth0"][0], "vpn resolver shadows the device's")
}

func TestReplaceSameSlot(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	w := newRecordingWriter()
	m := NewManager(w)

	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV4, "192.0.2.53"), core.DNSPriorityDefault)
	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV4, "192.0.2.54"), core.DNSPriorityDefault)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.0.2.54")}, w.servers["eth0"])
}

func TestRemoveConfig(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	w := newRecordingWriter()
	m := NewManager(w)

	c := cfg(core.FamilyV4, "192.0.2.53")
	m.SetIPConfig(ctx, "eth0", c, core.DNSPriorityDefault)
	m.RemoveIPConfig(ctx, c)
	assert.Empty(t, w.servers["eth0"])
}

func TestHostnameDomainExtraction(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	w := newRecordingWriter()
	m := NewManager(w)

	m.SetInitialHostname("host.corp.example.com")
	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV4, "192.0.2.53"), core.DNSPriorityBestDevice)
	assert.Contains(t, w.domains["eth0"], "corp.example.com")
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("host.example.com"))
	assert.Equal(t, "", domainOf("host"))
	assert.Equal(t, "", domainOf("localhost.localdomain"))
	assert.Equal(t, "", domainOf("host."))
}

func TestConfigChangedEmitsOnFlush(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	m := NewManager(nil)

	fired := 0
	m.ConfigChanged().Connect(func(struct{}) { fired++ })

	m.BeginUpdates(ctx, "t")
	m.SetIPConfig(ctx, "eth0", cfg(core.FamilyV4, "192.0.2.53"), core.DNSPriorityDefault)
	m.EndUpdates(ctx, "t")
	assert.Equal(t, 1, fired)

	// A window with no mutations stays silent.
	m.BeginUpdates(ctx, "t")
	m.EndUpdates(ctx, "t")
	assert.Equal(t, 1, fired)
}
