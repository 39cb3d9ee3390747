// Package resolved pushes per-link DNS configuration to systemd-resolved
// over the system bus.
package resolved

import (
	"context"
	"net"
	"net/netip"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/datawire/dlib/dlog"
)

const (
	busName    = "org.freedesktop.resolve1"
	objectPath = "/org/freedesktop/resolve1"
	manager    = "org.freedesktop.resolve1.Manager"
)

type (
	// linkAddress is an array member of the SetLinkDNS argument: an address
	// family followed by the raw address bytes.
	linkAddress struct {
		Dialect int32
		IP      []byte
	}

	// linkDomain is an array member of the SetLinkDomains argument. A
	// routing-only domain decides which server handles a request without
	// entering the search path.
	linkDomain struct {
		Name        string
		RoutingOnly bool
	}
)

func withBus(c context.Context, f func(*dbus.Conn) error) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		err = errors.Wrap(err, "failed to connect to system bus")
		dlog.Error(c, err)
		return err
	}
	defer conn.Close()
	return f(conn)
}

// IsRunning reports whether systemd-resolved owns its bus name.
func IsRunning(c context.Context) bool {
	err := withBus(c, func(conn *dbus.Conn) error {
		var names []string
		if err := conn.BusObject().CallWithContext(c, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
			return err
		}
		for _, name := range names {
			if name == busName {
				return nil
			}
		}
		return errors.New("not found")
	})
	return err == nil
}

// Writer implements the dnsmgr output end against systemd-resolved.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func linkIndex(iface string) (int, error) {
	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return 0, errors.Wrapf(err, "no such link %q", iface)
	}
	return ifc.Index, nil
}

func (w *Writer) SetLinkDNS(c context.Context, iface string, servers []netip.Addr) error {
	index, err := linkIndex(iface)
	if err != nil {
		return err
	}
	return withBus(c, func(conn *dbus.Conn) error {
		addrs := make([]linkAddress, len(servers))
		for i, server := range servers {
			addr := &addrs[i]
			if server.Is4() {
				addr.Dialect = unix.AF_INET
			} else {
				addr.Dialect = unix.AF_INET6
			}
			addr.IP = server.AsSlice()
		}
		return conn.Object(busName, objectPath).CallWithContext(
			c, manager+".SetLinkDNS", 0, int32(index), addrs).Err
	})
}

func (w *Writer) SetLinkDomains(c context.Context, iface string, domains []string) error {
	index, err := linkIndex(iface)
	if err != nil {
		return err
	}
	return withBus(c, func(conn *dbus.Conn) error {
		ds := make([]linkDomain, len(domains))
		for i, domain := range domains {
			ds[i] = linkDomain{Name: domain}
		}
		return conn.Object(busName, objectPath).CallWithContext(
			c, manager+".SetLinkDomains", 0, int32(index), ds).Err
	})
}

// RevertLink drops all per-link configuration previously pushed for the
// interface.
func (w *Writer) RevertLink(c context.Context, iface string) error {
	index, err := linkIndex(iface)
	if err != nil {
		return err
	}
	return withBus(c, func(conn *dbus.Conn) error {
		return conn.Object(busName, objectPath).CallWithContext(
			c, manager+".RevertLink", 0, int32(index)).Err
	})
}
