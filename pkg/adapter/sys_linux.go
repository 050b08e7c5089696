//go:build linux

package adapter

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/go-logr/logr"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Linux is the cloning-device family: every virtual interface is attached
// through the one shared character device, and the TUNSETIFF request that
// registers it also reports the name the kernel actually assigned.

const (
	clonePath = "/dev/net/tun"

	// defaultTxQueueLen mirrors the kernel default for tun devices.
	defaultTxQueueLen = 100
)

type linuxSys struct{}

func newSys() sys { return linuxSys{} }

func (linuxSys) open(layer Layer, name string, privileged bool, log logr.Logger) (*os.File, string, error) {
	file, err := os.OpenFile(clonePath, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		// 10:200 is the fixed misc-device number of the tun cloning
		// device.
		if merr := unix.Mknod(clonePath, unix.S_IFCHR|0o600, int(unix.Mkdev(10, 200))); merr != nil {
			return nil, "", classifyMknod(merr)
		}
		file, err = os.OpenFile(clonePath, os.O_RDWR, 0)
	}
	if err != nil {
		return nil, "", classify("opening "+clonePath, err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		file.Close()
		return nil, "", fmt.Errorf("interface name %q: %w", name, ErrInvalidArgument)
	}
	flags := uint16(unix.IFF_NO_PI)
	if layer == Ethernet {
		flags |= unix.IFF_TAP
	} else {
		flags |= unix.IFF_TUN
	}
	ifr.SetUint16(flags)
	if err := unix.IoctlIfreq(int(file.Fd()), unix.TUNSETIFF, ifr); err != nil {
		file.Close()
		return nil, "", classify("registering "+layer.String()+" interface", err)
	}
	assigned := ifr.Name()

	if privileged {
		// Best effort: the value is the kernel's own fallback anyway.
		if err := setTxQueueLen(assigned, defaultTxQueueLen); err != nil {
			log.V(1).Info("could not tune transmit queue length", "name", assigned, "error", err.Error())
		}
	}

	return file, assigned, nil
}

// classifyMknod maps a cloning-device creation failure: a permission
// refusal stays in the permission class, while anything else means the
// node cannot exist on this system at all.
func classifyMknod(err error) error {
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		return classify("creating "+clonePath, err)
	}
	return fmt.Errorf("creating %s: %v: %w", clonePath, err, ErrDeviceUnavailable)
}

func setTxQueueLen(name string, qlen int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetTxQLen(link, qlen)
}

// resolveName asks the descriptor which interface it is attached to. The
// open path never needs it on this family, since TUNSETIFF reports the
// name.
func (linuxSys) resolveName(file *os.File) (string, error) {
	ifr, err := unix.NewIfreq("")
	if err != nil {
		return "", err
	}
	if err := unix.IoctlIfreq(int(file.Fd()), unix.TUNGETIFF, ifr); err != nil {
		return "", err
	}
	return ifr.Name(), nil
}

func (linuxSys) setState(name string, up bool) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	if up {
		return netlink.LinkSetUp(link)
	}
	return netlink.LinkSetDown(link)
}

func (linuxSys) setMTU(name string, mtu int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetMTU(link, mtu)
}

func (linuxSys) addIPv4(name string, ip net.IP, prefix int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	mask := ipv4Mask(prefix)
	if prefix == 0 {
		// No netmask requested; a host address is the closest netlink
		// gets to the bare SIOCSIFADDR of the ioctl families.
		mask = net.CIDRMask(32, 32)
	}
	return netlink.AddrAdd(link, &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: mask}})
}

func (linuxSys) addIPv6(name string, ip net.IP, prefix int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.AddrAdd(link, &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: net.CIDRMask(prefix, 128)}})
}

// setPeer sets the point-to-point destination address. Netlink ties peer
// addresses to an address assignment, so this one request stays on the
// classic ifreq ioctl.
func (linuxSys) setPeer(name string, ip net.IP) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	if err := ifr.SetInet4Addr(ip); err != nil {
		return err
	}
	return unix.IoctlIfreq(sock, unix.SIOCSIFDSTADDR, ifr)
}

// destroyOnClose is false here: a non-persistent interface disappears when
// its descriptor closes.
func (linuxSys) destroyOnClose() bool { return false }

func (linuxSys) destroy(string) error { return nil }
