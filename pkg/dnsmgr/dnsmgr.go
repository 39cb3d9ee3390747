// Package dnsmgr collects per-device and per-VPN resolver configuration
// and writes the combined result out, batching all mutations that happen
// inside a begin/end update window into a single flush.
package dnsmgr

import (
	"context"
	"net/netip"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

// Writer is the output end. The production implementation talks to
// systemd-resolved; tests record calls.
type Writer interface {
	SetLinkDNS(ctx context.Context, iface string, servers []netip.Addr) error
	SetLinkDomains(ctx context.Context, iface string, domains []string) error
}

// NopWriter discards updates, for hosts without a supported resolver
// service.
type NopWriter struct{}

func (NopWriter) SetLinkDNS(context.Context, string, []netip.Addr) error { return nil }
func (NopWriter) SetLinkDomains(context.Context, string, []string) error { return nil }

type entry struct {
	iface string
	cfg   *core.IPConfig
	prio  core.DNSPriority
}

// Manager implements core.DNSManager.
type Manager struct {
	writer  Writer
	entries []*entry

	hostname     string
	searchDomain string

	updateDepth int
	dirty       bool

	// stale lists interfaces whose registrations were removed; the next
	// flush writes them out empty.
	stale []string

	configChanged *core.Signal[struct{}]
}

func NewManager(w Writer) *Manager {
	if w == nil {
		w = NopWriter{}
	}
	return &Manager{
		writer:        w,
		configChanged: core.NewSignal[struct{}](),
	}
}

func (m *Manager) ConfigChanged() *core.Signal[struct{}] {
	return m.configChanged
}

// BeginUpdates opens a batch window. Windows nest; only the outermost
// EndUpdates flushes.
func (m *Manager) BeginUpdates(ctx context.Context, tag string) {
	m.updateDepth++
	dlog.Tracef(ctx, "dns update window open (%s, depth %d)", tag, m.updateDepth)
}

func (m *Manager) EndUpdates(ctx context.Context, tag string) {
	if m.updateDepth == 0 {
		dlog.Warnf(ctx, "unbalanced dns update window end (%s)", tag)
		return
	}
	m.updateDepth--
	if m.updateDepth == 0 && m.dirty {
		m.flush(ctx)
	}
}

// SetIPConfig registers or re-registers a configuration. A configuration
// already present is re-tagged; otherwise it replaces any registration for
// the same interface and family.
func (m *Manager) SetIPConfig(ctx context.Context, iface string, cfg *core.IPConfig, prio core.DNSPriority) {
	if cfg == nil {
		return
	}
	for _, en := range m.entries {
		if en.cfg == cfg {
			if en.iface != iface || en.prio != prio {
				en.iface = iface
				en.prio = prio
				m.changed(ctx)
			}
			return
		}
	}
	for i, en := range m.entries {
		if en.iface == iface && en.cfg.Family == cfg.Family {
			m.entries[i] = &entry{iface: iface, cfg: cfg, prio: prio}
			m.changed(ctx)
			return
		}
	}
	m.entries = append(m.entries, &entry{iface: iface, cfg: cfg, prio: prio})
	m.changed(ctx)
}

func (m *Manager) RemoveIPConfig(ctx context.Context, cfg *core.IPConfig) {
	for i, en := range m.entries {
		if en.cfg == cfg {
			m.stale = append(m.stale, en.iface)
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			m.changed(ctx)
			return
		}
	}
}

func (m *Manager) SetInitialHostname(name string) {
	m.hostname = name
	m.searchDomain = domainOf(name)
}

// SetHostname records the current hostname and extracts its domain suffix
// into the search list.
func (m *Manager) SetHostname(ctx context.Context, name string) {
	if m.hostname == name {
		return
	}
	m.hostname = name
	m.searchDomain = domainOf(name)
	m.changed(ctx)
}

func domainOf(hostname string) string {
	if i := strings.IndexByte(hostname, '.'); i > 0 && i < len(hostname)-1 {
		domain := hostname[i+1:]
		if domain != "localdomain" && domain != "localdomain6" {
			return domain
		}
	}
	return ""
}

func (m *Manager) changed(ctx context.Context) {
	if m.updateDepth > 0 {
		m.dirty = true
		return
	}
	m.flush(ctx)
}

// flush writes the combined configuration, ordered so that VPN resolvers
// shadow the best device's, which shadow the rest.
func (m *Manager) flush(ctx context.Context) {
	m.dirty = false

	type linkConfig struct {
		servers []netip.Addr
		domains []string
	}
	links := make(map[string]*linkConfig)
	order := []core.DNSPriority{core.DNSPriorityVPN, core.DNSPriorityBestDevice, core.DNSPriorityDefault}
	for _, prio := range order {
		for _, en := range m.entries {
			if en.prio != prio || en.iface == "" {
				continue
			}
			lc := links[en.iface]
			if lc == nil {
				lc = &linkConfig{}
				links[en.iface] = lc
			}
			lc.servers = append(lc.servers, en.cfg.DNSServers...)
			lc.domains = append(lc.domains, en.cfg.SearchDomains...)
			if m.searchDomain != "" {
				lc.domains = append(lc.domains, m.searchDomain)
			}
		}
	}
	for _, iface := range m.stale {
		if iface != "" && links[iface] == nil {
			links[iface] = &linkConfig{}
		}
	}
	m.stale = nil
	for iface, lc := range links {
		if err := m.writer.SetLinkDNS(ctx, iface, dedupAddrs(lc.servers)); err != nil {
			dlog.Warnf(ctx, "failed to set DNS servers on %s: %v", iface, err)
		}
		if err := m.writer.SetLinkDomains(ctx, iface, dedupStrings(lc.domains)); err != nil {
			dlog.Warnf(ctx, "failed to set search domains on %s: %v", iface, err)
		}
	}
	dlog.Debugf(ctx, "dns configuration flushed to %d links", len(links))
	m.configChanged.Emit(struct{}{})
}

func dedupAddrs(as []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]struct{}, len(as))
	out := as[:0]
	for _, a := range as {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

func dedupStrings(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := ss[:0]
	for _, s := range ss {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
