// Package platform is the kernel shim: link attributes from sysfs and the
// hostname syscalls.
package platform

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/vireonet/vireo/pkg/core"
)

const sysClassNet = "/sys/class/net"

// Sys implements core.Platform against the running kernel.
type Sys struct{}

func New() *Sys {
	return &Sys{}
}

// Link returns the kernel's view of the interface with the given index,
// nil when it does not exist.
func (s *Sys) Link(index int) *core.Link {
	ifc, err := net.InterfaceByIndex(index)
	if err != nil {
		return nil
	}
	link := &core.Link{
		Index: index,
		Up:    ifc.Flags&net.FlagUp != 0,
	}
	// An enslaved link has a "master" symlink pointing at its master's
	// sysfs node.
	if target, err := os.Readlink(filepath.Join(sysClassNet, ifc.Name, "master")); err == nil {
		masterName := filepath.Base(target)
		if master, err := net.InterfaceByName(masterName); err == nil {
			link.Master = master.Index
		}
	}
	return link
}

func (s *Sys) GetHostname() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return strings.TrimRight(unix.ByteSliceToString(uts.Nodename[:]), "\x00"), nil
}

func (s *Sys) SetHostname(name string) error {
	return unix.Sethostname([]byte(name))
}
