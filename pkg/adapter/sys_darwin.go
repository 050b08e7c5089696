//go:build darwin

package adapter

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"unsafe"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// Darwin is the static-node family: the tuntap kext exposes a fixed pool
// of /dev/tunN and /dev/tapN character devices. Configuration goes through
// fixed-layout requests on throwaway datagram sockets; the record layouts
// below must match the darwin ABI byte for byte.

const (
	// _IOW('i', 26, struct in6_aliasreq)
	ioctlSIOCAIFADDR_IN6 = 0x8080691a

	// _IOW('i', 121, struct ifreq)
	ioctlSIOCIFDESTROY = 0x80206979

	infiniteLifetime = 0xFFFFFFFF
)

// ifreqAddr is struct ifreq with the sockaddr member of the union.
type ifreqAddr struct {
	Name [ifNameSize]byte
	Addr unix.RawSockaddrInet4
}

// ifreqFlags is struct ifreq with the flags member of the union.
type ifreqFlags struct {
	Name  [ifNameSize]byte
	Flags uint16
	pad   [14]byte
}

// ifreqMTU is struct ifreq with the int member of the union.
type ifreqMTU struct {
	Name [ifNameSize]byte
	MTU  int32
	pad  [12]byte
}

// in6Aliasreq is struct in6_aliasreq: address, destination and prefix mask
// plus the address lifetimes.
type in6Aliasreq struct {
	Name       [ifNameSize]byte
	Addr       unix.RawSockaddrInet6
	Dstaddr    unix.RawSockaddrInet6
	Prefixmask unix.RawSockaddrInet6
	Flags      int32
	Lifetime   in6AddrLifetime
}

// in6AddrLifetime is struct in6_addrlifetime.
type in6AddrLifetime struct {
	Expire    int64
	Preferred int64
	Vltime    uint32
	Pltime    uint32
}

func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

type darwinSys struct{}

func newSys() sys { return darwinSys{} }

func (s darwinSys) open(layer Layer, name string, _ bool, log logr.Logger) (*os.File, string, error) {
	var (
		file     *os.File
		fallback string
		err      error
	)

	if name != "" {
		fallback = name
		file, err = os.OpenFile("/dev/"+name, os.O_RDWR, 0)
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("/dev/%s: %w", name, ErrDeviceUnavailable)
		}
		if err != nil {
			return nil, "", classify("opening /dev/"+name, err)
		}
	} else {
		file, fallback, err = probeDevice(func(path string) (*os.File, error) {
			return os.OpenFile(path, os.O_RDWR, 0)
		}, layer.String())
		if err != nil {
			return nil, "", err
		}
	}

	// The node name usually is the interface name, but the registered
	// name from the device number is authoritative where it resolves.
	resolved, rerr := s.resolveName(file)
	if rerr != nil {
		log.V(1).Info("falling back to device node name", "name", fallback, "error", rerr.Error())
		resolved = fallback
	}
	return file, resolved, nil
}

// resolveName reverse-maps the descriptor's character device number to its
// /dev entry, the devname(3) equivalent.
func (darwinSys) resolveName(file *os.File) (string, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(file.Fd()), &st); err != nil {
		return "", err
	}
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.Mode()&os.ModeCharDevice == 0 {
			continue
		}
		if est, ok := info.Sys().(*syscall.Stat_t); ok && uint64(est.Rdev) == uint64(st.Rdev) {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("no /dev entry for device %#x", st.Rdev)
}

func (darwinSys) setState(name string, up bool) error {
	if !up {
		// Clearing IFF_UP confuses the tuntap kext; leave the flags
		// alone.
		return nil
	}

	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	var ifr ifreqFlags
	copy(ifr.Name[:], name)
	if err := ioctlPtr(sock, unix.SIOCGIFFLAGS, unsafe.Pointer(&ifr)); err != nil {
		return fmt.Errorf("getting flags: %w", err)
	}
	ifr.Flags |= unix.IFF_UP
	return ioctlPtr(sock, unix.SIOCSIFFLAGS, unsafe.Pointer(&ifr))
}

func (darwinSys) setMTU(name string, mtu int) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	ifr := ifreqMTU{MTU: int32(mtu)}
	copy(ifr.Name[:], name)
	return ioctlPtr(sock, unix.SIOCSIFMTU, unsafe.Pointer(&ifr))
}

func (darwinSys) addIPv4(name string, ip net.IP, prefix int) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	ifr := ifreqAddr{Addr: unix.RawSockaddrInet4{Len: unix.SizeofSockaddrInet4, Family: unix.AF_INET}}
	copy(ifr.Name[:], name)
	copy(ifr.Addr.Addr[:], ip)
	if err := ioctlPtr(sock, unix.SIOCSIFADDR, unsafe.Pointer(&ifr)); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("assigning address: %w", err)
	}

	// A zero prefix assigns the address alone and keeps the kernel's own
	// netmask.
	if prefix > 0 {
		copy(ifr.Addr.Addr[:], ipv4Mask(prefix))
		if err := ioctlPtr(sock, unix.SIOCSIFNETMASK, unsafe.Pointer(&ifr)); err != nil && !errors.Is(err, unix.EEXIST) {
			return fmt.Errorf("assigning netmask: %w", err)
		}
	}
	return nil
}

func (darwinSys) addIPv6(name string, ip net.IP, prefix int) error {
	sock, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	req := in6Aliasreq{
		Addr:       unix.RawSockaddrInet6{Len: unix.SizeofSockaddrInet6, Family: unix.AF_INET6},
		Prefixmask: unix.RawSockaddrInet6{Len: unix.SizeofSockaddrInet6, Family: unix.AF_INET6},
		Lifetime:   in6AddrLifetime{Vltime: infiniteLifetime, Pltime: infiniteLifetime},
	}
	copy(req.Name[:], name)
	copy(req.Addr.Addr[:], ip)
	copy(req.Prefixmask.Addr[:], net.CIDRMask(prefix, 128))
	return ioctlPtr(sock, ioctlSIOCAIFADDR_IN6, unsafe.Pointer(&req))
}

// setPeer reports ErrUnsupported: the darwin TUN driver ignores
// SIOCSIFDSTADDR, so attempting it would fail silently. Callers install a
// route to the peer instead.
func (darwinSys) setPeer(name string, _ net.IP) error {
	return fmt.Errorf("peer address on %s: %w", name, ErrUnsupported)
}

// destroyOnClose is true here: the interface outlives its descriptor and
// must be destroyed explicitly.
func (darwinSys) destroyOnClose() bool { return true }

func (darwinSys) destroy(name string) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	var ifr ifreqFlags
	copy(ifr.Name[:], name)
	if err := ioctlPtr(sock, ioctlSIOCIFDESTROY, unsafe.Pointer(&ifr)); err != nil {
		return fmt.Errorf("destroying %s: %w", name, err)
	}
	return nil
}
