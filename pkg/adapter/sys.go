package adapter

import (
	"net"
	"os"

	"github.com/go-logr/logr"
)

// sys is the per-platform-family capability set behind Adapter. One
// concrete implementation exists per family, selected at build time. The
// portable layer owns validation, privilege short-circuits and the
// already-assigned tolerance; sys carries the kernel request surface.
type sys interface {
	// open locates or creates the backing device and registers the
	// virtual interface. The returned name is empty when the family
	// cannot know it until resolveName.
	open(layer Layer, name string, privileged bool, log logr.Logger) (*os.File, string, error)

	// resolveName reverse-maps an open descriptor to its registered
	// interface name.
	resolveName(file *os.File) (string, error)

	setState(name string, up bool) error
	setMTU(name string, mtu int) error
	addIPv4(name string, ip net.IP, prefix int) error
	addIPv6(name string, ip net.IP, prefix int) error
	setPeer(name string, ip net.IP) error

	// destroyOnClose reports whether interfaces of this family outlive
	// their descriptor and need an explicit destroy request at teardown.
	destroyOnClose() bool
	destroy(name string) error
}
