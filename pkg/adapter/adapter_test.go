package adapter

import (
	"errors"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSys lets the portable lifecycle run without a kernel.
type fakeSys struct {
	assignedName string
	resolveTo    string
	resolveErr   error
	openErr      error

	stateErr   error
	mtuErr     error
	v4Err      error
	v6Err      error
	peerErr    error
	reclaim    bool
	destroyErr error

	ops        []string
	states     []bool
	mtus       []int
	v4Prefixes []int
	destroyed  []string

	file *os.File
}

func (f *fakeSys) open(Layer, string, bool, logr.Logger) (*os.File, string, error) {
	if f.openErr != nil {
		return nil, "", f.openErr
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, "", err
	}
	w.Close()
	f.file = r
	return r, f.assignedName, nil
}

func (f *fakeSys) resolveName(*os.File) (string, error) {
	f.ops = append(f.ops, "resolve")
	return f.resolveTo, f.resolveErr
}

func (f *fakeSys) setState(_ string, up bool) error {
	f.ops = append(f.ops, "state")
	f.states = append(f.states, up)
	return f.stateErr
}

func (f *fakeSys) setMTU(_ string, mtu int) error {
	f.ops = append(f.ops, "mtu")
	f.mtus = append(f.mtus, mtu)
	return f.mtuErr
}

func (f *fakeSys) addIPv4(_ string, _ net.IP, prefix int) error {
	f.ops = append(f.ops, "ipv4")
	f.v4Prefixes = append(f.v4Prefixes, prefix)
	return f.v4Err
}

func (f *fakeSys) addIPv6(string, net.IP, int) error {
	f.ops = append(f.ops, "ipv6")
	return f.v6Err
}

func (f *fakeSys) setPeer(string, net.IP) error {
	f.ops = append(f.ops, "peer")
	return f.peerErr
}

func (f *fakeSys) destroyOnClose() bool { return f.reclaim }

func (f *fakeSys) destroy(name string) error {
	f.destroyed = append(f.destroyed, name)
	return f.destroyErr
}

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
}

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	ip, ipnet, err := net.ParseCIDR(s)
	require.NoError(t, err)
	ipnet.IP = ip
	return ipnet
}

func newTestAdapter(t *testing.T, f *fakeSys, privileged bool) *Adapter {
	t.Helper()
	a, err := newWithSys(Config{Layer: IP, KeepDown: true, Logger: logr.Discard()}, f, privileged)
	require.NoError(t, err)
	return a
}

func TestNewReportsKernelAssignedName(t *testing.T) {
	f := &fakeSys{assignedName: "tap3"}
	a, err := newWithSys(Config{Name: "mytap", Layer: Ethernet, KeepDown: true, Logger: logr.Discard()}, f, true)
	require.NoError(t, err)
	defer a.Close()

	// The kernel rejected or renamed the requested name; its answer wins.
	assert.Equal(t, "tap3", a.Name())
	assert.Equal(t, Ethernet, a.Layer())
}

func TestNewRejectsOversizedName(t *testing.T) {
	f := &fakeSys{}
	_, err := newWithSys(Config{Name: "averylonginterfacename0", Logger: logr.Discard()}, f, true)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, f.file, "no device may be opened for an invalid name")
}

func TestNewResolvesNameWhenUnknownAtOpen(t *testing.T) {
	f := &fakeSys{resolveTo: "tun2"}
	a, err := newWithSys(Config{Layer: IP, KeepDown: true, Logger: logr.Discard()}, f, true)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "tun2", a.Name())
	assert.Contains(t, f.ops, "resolve")
}

func TestNewSurfacesNameResolutionFailure(t *testing.T) {
	f := &fakeSys{resolveErr: errors.New("no such device entry")}
	_, err := newWithSys(Config{Layer: IP, Logger: logr.Discard()}, f, true)
	require.ErrorIs(t, err, ErrNameResolution)
	assert.ErrorIs(t, f.file.Close(), os.ErrClosed, "descriptor must be released on failure")
}

func TestNewAppliesInitialSettingsInOrder(t *testing.T) {
	f := &fakeSys{assignedName: "tun0"}
	cfg := Config{
		Layer:  IP,
		MTU:    1400,
		IPv4:   mustCIDR(t, "192.0.2.10/24"),
		IPv6:   mustCIDR(t, "2001:db8::10/64"),
		Logger: logr.Discard(),
	}
	a, err := newWithSys(cfg, f, true)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"mtu", "ipv4", "ipv6", "state"}, f.ops)
	assert.Equal(t, []int{1400}, f.mtus)
	assert.Equal(t, []bool{true}, f.states)
}

func TestNewClosesDescriptorOnConfigFailure(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", v4Err: errors.New("kernel said no")}
	_, err := newWithSys(Config{Layer: IP, IPv4: mustCIDR(t, "192.0.2.10/24"), Logger: logr.Discard()}, f, true)
	require.Error(t, err)
	assert.ErrorIs(t, f.file.Close(), os.ErrClosed)
}

func TestSetIPv4AlreadyAssignedIsSuccess(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", v4Err: syscall.EEXIST}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	assert.NoError(t, a.SetIPv4(mustCIDR(t, "192.0.2.10/24")))
}

func TestSetIPv4ZeroPrefixIsPassedThrough(t *testing.T) {
	f := &fakeSys{assignedName: "tun0"}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	// A zero prefix asks for a bare address assignment; the platform
	// layer must see it unchanged so it can skip the netmask.
	require.NoError(t, a.SetIPv4(mustCIDR(t, "192.0.2.10/0")))
	assert.Equal(t, []int{0}, f.v4Prefixes)
}

func TestSetIPv4Validation(t *testing.T) {
	f := &fakeSys{assignedName: "tun0"}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	err := a.SetIPv4(&net.IPNet{IP: net.ParseIP("192.0.2.10"), Mask: net.CIDRMask(32, 32)})
	assert.ErrorIs(t, err, ErrInvalidArgument, "prefix 32 is out of range")

	err = a.SetIPv4(&net.IPNet{IP: net.ParseIP("2001:db8::1"), Mask: net.CIDRMask(24, 32)})
	assert.ErrorIs(t, err, ErrInvalidArgument, "not an IPv4 address")

	assert.NotContains(t, f.ops, "ipv4", "no kernel call for invalid input")
}

func TestSetIPv6AlreadyAssignedIsSuccess(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", v6Err: syscall.EEXIST}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	assert.NoError(t, a.SetIPv6(mustCIDR(t, "2001:db8::10/64")))
}

func TestSetIPv6Validation(t *testing.T) {
	f := &fakeSys{assignedName: "tun0"}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	err := a.SetIPv6(&net.IPNet{IP: net.ParseIP("2001:db8::1"), Mask: net.CIDRMask(128, 128)})
	assert.ErrorIs(t, err, ErrInvalidArgument, "prefix 128 is out of range")

	err = a.SetIPv6(&net.IPNet{IP: net.ParseIP("192.0.2.1"), Mask: net.CIDRMask(64, 128)})
	assert.ErrorIs(t, err, ErrInvalidArgument, "not an IPv6 address")

	assert.NotContains(t, f.ops, "ipv6")
}

func TestSetMTUValidation(t *testing.T) {
	f := &fakeSys{assignedName: "tun0"}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	assert.ErrorIs(t, a.SetMTU(0), ErrInvalidArgument)
	assert.ErrorIs(t, a.SetMTU(-1), ErrInvalidArgument)
	assert.ErrorIs(t, a.SetMTU(70000), ErrInvalidArgument)
	assert.NotContains(t, f.ops, "mtu")

	assert.NoError(t, a.SetMTU(1500))
	assert.Equal(t, []int{1500}, f.mtus)
}

func TestSetRemoteIPv4Unsupported(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", peerErr: ErrUnsupported}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	assert.ErrorIs(t, a.SetRemoteIPv4(net.ParseIP("192.0.2.1")), ErrUnsupported)
}

func TestSetRemoteIPv4AlreadyAssignedIsSuccess(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", peerErr: syscall.EEXIST}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	assert.NoError(t, a.SetRemoteIPv4(net.ParseIP("192.0.2.1")))
}

func TestPermissionFailuresAreClassified(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", v4Err: syscall.EPERM}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	assert.ErrorIs(t, a.SetIPv4(mustCIDR(t, "192.0.2.10/24")), ErrPermissionDenied)
}

func TestStateChangePermissionFailureIsClassified(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", stateErr: syscall.EPERM}
	a := newTestAdapter(t, f, true)
	defer a.Close()

	assert.ErrorIs(t, a.SetConnectedState(true), ErrPermissionDenied)
}

func TestUnprivilegedStateChangeIsNoop(t *testing.T) {
	f := &fakeSys{assignedName: "tun0"}
	a := newTestAdapter(t, f, false)
	defer a.Close()

	assert.NoError(t, a.SetConnectedState(true))
	assert.NoError(t, a.SetConnectedState(false))
	assert.NotContains(t, f.ops, "state", "unprivileged callers must not touch the kernel")
}

func TestUnprivilegedCloseSkipsDestroy(t *testing.T) {
	f := &fakeSys{assignedName: "tun0", reclaim: true}
	a := newTestAdapter(t, f, false)

	require.NoError(t, a.Close())
	assert.Empty(t, f.destroyed)
	assert.ErrorIs(t, f.file.Close(), os.ErrClosed)
}

func TestPrivilegedCloseDestroysInterface(t *testing.T) {
	f := &fakeSys{assignedName: "tap1", reclaim: true}
	a, err := newWithSys(Config{Layer: Ethernet, KeepDown: true, Logger: logr.Discard()}, f, true)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.Equal(t, []string{"tap1"}, f.destroyed)
}

func TestCloseSurfacesDestroyFailureButReleasesDescriptor(t *testing.T) {
	f := &fakeSys{assignedName: "tap1", reclaim: true, destroyErr: errors.New("kernel said no")}
	a, err := newWithSys(Config{Layer: Ethernet, KeepDown: true, Logger: logr.Discard()}, f, true)
	require.NoError(t, err)

	require.Error(t, a.Close())
	assert.ErrorIs(t, f.file.Close(), os.ErrClosed, "descriptor must be released even when destroy fails")
}
