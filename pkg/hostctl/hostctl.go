// Package hostctl writes the system hostname, preferring the hostnamed
// service and falling back to the kernel call.
package hostctl

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/datawire/dlib/dlog"
)

const (
	busName    = "org.freedesktop.hostname1"
	objectPath = "/org/freedesktop/hostname1"
)

// Writer commits hostnames. The hostnamed path is canonical; the kernel
// fallback exists for hosts without systemd-hostnamed.
type Writer struct {
	// hostnamedAvailable is probed on first use and cached.
	hostnamedAvailable *bool
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) probeHostnamed(c context.Context) bool {
	if w.hostnamedAvailable != nil {
		return *w.hostnamedAvailable
	}
	avail := false
	conn, err := dbus.ConnectSystemBus()
	if err == nil {
		var names []string
		if err = conn.BusObject().CallWithContext(c, "org.freedesktop.DBus.ListNames", 0).Store(&names); err == nil {
			for _, name := range names {
				if name == busName {
					avail = true
					break
				}
			}
		}
		conn.Close()
	}
	w.hostnamedAvailable = &avail
	return avail
}

// SetHostname sets the kernel hostname, via hostnamed when available.
func (w *Writer) SetHostname(c context.Context, name string) error {
	if w.probeHostnamed(c) {
		if err := w.setViaHostnamed(c, name); err != nil {
			dlog.Warnf(c, "hostnamed refused hostname %q: %v", name, err)
			return err
		}
		return nil
	}
	if err := unix.Sethostname([]byte(name)); err != nil {
		if errors.Is(err, unix.EPERM) {
			dlog.Warnf(c, "no permission to set hostname %q; run privileged or provide systemd-hostnamed", name)
		}
		return errors.Wrapf(err, "sethostname %q", name)
	}
	return nil
}

func (w *Writer) setViaHostnamed(c context.Context, name string) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return errors.Wrap(err, "failed to connect to system bus")
	}
	defer conn.Close()
	return conn.Object(busName, objectPath).CallWithContext(
		c, busName+".SetHostname", 0, name, false).Err
}

// GetHostname reads the kernel hostname.
func GetHostname() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Nodename[:]), nil
}
