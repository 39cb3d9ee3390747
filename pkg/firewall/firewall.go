// Package firewall coordinates zone placement with firewalld.
package firewall

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

const (
	busName    = "org.fedoraproject.FirewallD1"
	objectPath = "/org/fedoraproject/FirewallD1"
	zoneIface  = "org.fedoraproject.FirewallD1.zone"
)

// Bridge implements core.Firewall against the firewalld D-Bus API. Zone
// updates are fire-and-forget; the policy engine does not depend on their
// outcome.
type Bridge struct {
	started *core.Signal[struct{}]
}

func NewBridge() *Bridge {
	return &Bridge{started: core.NewSignal[struct{}]()}
}

func (b *Bridge) Started() *core.Signal[struct{}] {
	return b.started
}

// NotifyStarted is called by the daemon when it observes the firewall
// service coming up, so the engine can re-apply zones.
func (b *Bridge) NotifyStarted() {
	b.started.Emit(struct{}{})
}

// UpdateZone puts the device's interface in its default zone.
func (b *Bridge) UpdateZone(ctx context.Context, d *core.Device) {
	if err := b.changeZone(ctx, d.Iface); err != nil {
		dlog.Debugf(ctx, "firewall zone update for %s: %v", d.Iface, err)
	}
}

func (b *Bridge) changeZone(ctx context.Context, iface string) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return errors.Wrap(err, "failed to connect to system bus")
	}
	defer conn.Close()
	var zone string
	return conn.Object(busName, objectPath).CallWithContext(
		ctx, zoneIface+".changeZoneOfInterface", 0, "", iface).Store(&zone)
}
