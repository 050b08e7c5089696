// Package adapter creates, configures and tears down TUN and TAP virtual
// network interfaces behind a single contract.
//
// On Linux the interface is attached through the shared cloning device
// (/dev/net/tun); on Darwin it comes from the fixed pool of /dev/tunN and
// /dev/tapN nodes exposed by the tuntap driver. Either way the caller gets
// back an open descriptor for raw packet I/O and the kernel-assigned
// interface name, plus the usual configuration operations (state, MTU,
// IPv4/IPv6 addresses, point-to-point peer).
//
// An Adapter is not safe for concurrent configuration; callers drive one
// adapter from one goroutine or serialize externally. Separate adapters are
// fully independent.
package adapter

import (
	"fmt"
	"net"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

// ifNameSize is the kernel limit on interface names, including the
// trailing NUL (IFNAMSIZ on every supported platform).
const ifNameSize = 16

// Layer is the OSI layer a virtual interface operates at. It is fixed at
// creation.
type Layer int

const (
	// Ethernet is a TAP adapter carrying ethernet frames.
	Ethernet Layer = iota

	// IP is a TUN adapter carrying IP packets point-to-point.
	IP
)

func (l Layer) String() string {
	if l == Ethernet {
		return "tap"
	}
	return "tun"
}

// Config describes the adapter to create.
type Config struct {
	// Name is the interface name to request. Empty triggers
	// auto-assignment on Linux and device probing on Darwin. The kernel
	// has the final say either way; read the result back with
	// Adapter.Name.
	Name string

	// Layer selects TAP (Ethernet) or TUN (IP).
	Layer Layer

	// MTU is set after the interface is registered. Zero keeps the kernel
	// default.
	MTU int

	// IPv4 is an IPv4 address to assign after the interface is
	// registered.
	IPv4 *net.IPNet

	// IPv6 is an IPv6 address to assign after the interface is
	// registered.
	IPv6 *net.IPNet

	// RemoteIPv4 is the point-to-point peer address. Only meaningful for
	// IP adapters, and only on families that support it.
	RemoteIPv4 net.IP

	// KeepDown leaves the interface administratively down instead of
	// bringing it up once configured.
	KeepDown bool

	// Logger receives lifecycle events. The zero Logger discards them.
	Logger logr.Logger
}

// Adapter is a live virtual network interface backed by one open kernel
// descriptor. Exactly one Adapter owns a descriptor; the owner must call
// Close exactly once and must not use the adapter afterwards.
type Adapter struct {
	file       *os.File
	name       string
	layer      Layer
	privileged bool
	log        logr.Logger
	sys        sys
}

// New creates and configures a virtual interface. On failure nothing is
// left open.
//
// Most of the configuration requires elevated privilege. An unprivileged
// caller still gets a working descriptor when the device node permits it,
// on the assumption that a privileged helper configured the interface
// beforehand.
func New(cfg Config) (*Adapter, error) {
	return newWithSys(cfg, newSys(), os.Geteuid() == 0)
}

// newWithSys is New with the platform strategy and privilege supplied by
// the caller. Tests inject fakes here.
func newWithSys(cfg Config, s sys, privileged bool) (*Adapter, error) {
	if len(cfg.Name) >= ifNameSize {
		return nil, fmt.Errorf("interface name %q longer than %d bytes: %w", cfg.Name, ifNameSize-1, ErrInvalidArgument)
	}

	file, name, err := s.open(cfg.Layer, cfg.Name, privileged, cfg.Logger)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		file:       file,
		name:       name,
		layer:      cfg.Layer,
		privileged: privileged,
		log:        cfg.Logger,
		sys:        s,
	}

	if a.name == "" {
		resolved, rerr := s.resolveName(file)
		if rerr != nil {
			file.Close()
			return nil, fmt.Errorf("%w: %v", ErrNameResolution, rerr)
		}
		if resolved == "" {
			file.Close()
			return nil, ErrNameResolution
		}
		a.name = resolved
	}

	if err := a.applyConfig(cfg); err != nil {
		file.Close()
		return nil, err
	}

	a.log.Info("adapter ready", "name", a.name, "layer", a.layer.String())
	return a, nil
}

func (a *Adapter) applyConfig(cfg Config) error {
	if cfg.MTU != 0 {
		if err := a.SetMTU(cfg.MTU); err != nil {
			return err
		}
	}
	if cfg.IPv4 != nil {
		if err := a.SetIPv4(cfg.IPv4); err != nil {
			return err
		}
	}
	if cfg.RemoteIPv4 != nil {
		if err := a.SetRemoteIPv4(cfg.RemoteIPv4); err != nil {
			return err
		}
	}
	if cfg.IPv6 != nil {
		if err := a.SetIPv6(cfg.IPv6); err != nil {
			return err
		}
	}
	if !cfg.KeepDown {
		if err := a.SetConnectedState(true); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the kernel-assigned interface name. When a name was
// requested at creation the kernel may still have picked a different one;
// this value is the one to trust.
func (a *Adapter) Name() string {
	return a.name
}

// Layer returns the adapter's layer.
func (a *Adapter) Layer() Layer {
	return a.layer
}

// Read reads one frame (TAP) or packet (TUN) from the interface.
func (a *Adapter) Read(p []byte) (int, error) {
	return a.file.Read(p)
}

// Write writes one frame (TAP) or packet (TUN) to the interface.
func (a *Adapter) Write(p []byte) (int, error) {
	return a.file.Write(p)
}

// SetConnectedState brings the interface up or down.
//
// Without elevated privilege this reports success without touching the
// kernel: the interface is assumed to have been configured by a
// privileged helper. On Darwin, bringing the interface down is a
// deliberate no-op because clearing the flags destabilizes the tuntap
// driver.
func (a *Adapter) SetConnectedState(up bool) error {
	if !a.privileged {
		a.log.V(1).Info("skipping connected state change without privilege", "name", a.name, "up", up)
		return nil
	}
	return classify(fmt.Sprintf("setting state on %s", a.name), a.sys.setState(a.name, up))
}

// SetMTU sets the interface MTU.
func (a *Adapter) SetMTU(mtu int) error {
	if mtu <= 0 || mtu > 0xFFFF {
		return fmt.Errorf("mtu %d: %w", mtu, ErrInvalidArgument)
	}
	return classify(fmt.Sprintf("setting mtu on %s", a.name), a.sys.setMTU(a.name, mtu))
}

// SetIPv4 assigns an IPv4 address to the interface. The prefix length
// must be in [0,32); the netmask is derived from it, except that a zero
// prefix assigns the address alone. Assigning an address that is already
// present reports success.
func (a *Adapter) SetIPv4(addr *net.IPNet) error {
	ip := addr.IP.To4()
	if ip == nil {
		return fmt.Errorf("%s is not an IPv4 address: %w", addr.IP, ErrInvalidArgument)
	}
	prefix, bits := addr.Mask.Size()
	if bits != 32 || prefix >= 32 {
		return fmt.Errorf("IPv4 prefix length %d/%d: %w", prefix, bits, ErrInvalidArgument)
	}

	if err := a.sys.addIPv4(a.name, ip, prefix); err != nil {
		if alreadyAssigned(err) {
			a.log.V(1).Info("IPv4 address already assigned", "name", a.name, "addr", addr.String())
			return nil
		}
		return classify(fmt.Sprintf("assigning %s to %s", addr, a.name), err)
	}
	return nil
}

// SetIPv6 assigns an IPv6 address to the interface. The prefix length
// must be in [0,128). Assigning an address that is already present
// reports success.
func (a *Adapter) SetIPv6(addr *net.IPNet) error {
	if addr.IP.To16() == nil || addr.IP.To4() != nil {
		return fmt.Errorf("%s is not an IPv6 address: %w", addr.IP, ErrInvalidArgument)
	}
	prefix, bits := addr.Mask.Size()
	if bits != 128 || prefix >= 128 {
		return fmt.Errorf("IPv6 prefix length %d/%d: %w", prefix, bits, ErrInvalidArgument)
	}

	if err := a.sys.addIPv6(a.name, addr.IP.To16(), prefix); err != nil {
		if alreadyAssigned(err) {
			a.log.V(1).Info("IPv6 address already assigned", "name", a.name, "addr", addr.String())
			return nil
		}
		return classify(fmt.Sprintf("assigning %s to %s", addr, a.name), err)
	}
	return nil
}

// SetRemoteIPv4 sets the point-to-point peer address. On Darwin this
// returns ErrUnsupported without attempting a kernel call: the TUN driver
// there does not honor the destination-address request and callers must
// install a route instead.
func (a *Adapter) SetRemoteIPv4(ip net.IP) error {
	v4 := ip.To4()
	if v4 == nil {
		return fmt.Errorf("%s is not an IPv4 address: %w", ip, ErrInvalidArgument)
	}

	if err := a.sys.setPeer(a.name, v4); err != nil {
		if alreadyAssigned(err) {
			a.log.V(1).Info("peer address already assigned", "name", a.name, "peer", ip.String())
			return nil
		}
		return classify(fmt.Sprintf("setting peer %s on %s", ip, a.name), err)
	}
	return nil
}

// Close tears the adapter down. On families where the kernel does not
// reclaim the interface when its descriptor closes, a privileged owner
// destroys the interface explicitly first; unprivileged owners only close
// the descriptor. A destroy failure is reported but never prevents the
// close.
func (a *Adapter) Close() error {
	var err error
	if a.privileged && a.sys.destroyOnClose() {
		err = a.sys.destroy(a.name)
	}
	err = multierr.Append(err, a.file.Close())
	if err == nil {
		a.log.V(1).Info("adapter closed", "name", a.name)
	}
	return err
}
