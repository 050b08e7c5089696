//go:build darwin

package adapter

import (
	"errors"
	"net"
	"testing"
	"unsafe"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The request records are the wire format at the kernel boundary; their
// sizes are fixed by the darwin ABI.
func TestRequestRecordSizes(t *testing.T) {
	assert.EqualValues(t, 32, unsafe.Sizeof(ifreqAddr{}))
	assert.EqualValues(t, 32, unsafe.Sizeof(ifreqFlags{}))
	assert.EqualValues(t, 32, unsafe.Sizeof(ifreqMTU{}))
	assert.EqualValues(t, 128, unsafe.Sizeof(in6Aliasreq{}))
}

func TestDownStateIsDeliberateNoop(t *testing.T) {
	// No kernel call happens, so any name is fine here.
	assert.NoError(t, darwinSys{}.setState("utun99", false))
}

func TestSetPeerIsUnsupported(t *testing.T) {
	assert.ErrorIs(t, darwinSys{}.setPeer("tun0", nil), ErrUnsupported)
}

func TestTunAdapterZeroPrefixKeepsKernelNetmask(t *testing.T) {
	requireRoot(t)

	addr := &net.IPNet{IP: net.ParseIP("10.83.0.2"), Mask: net.CIDRMask(0, 32)}
	a, err := New(Config{Layer: IP, IPv4: addr, KeepDown: true, Logger: logr.Discard()})
	if errors.Is(err, ErrDeviceUnavailable) {
		t.Skip("no tun device nodes present")
	}
	require.NoError(t, err)
	defer a.Close()

	inf, err := net.InterfaceByName(a.Name())
	require.NoError(t, err)
	addrs, err := inf.Addrs()
	require.NoError(t, err)

	var got *net.IPNet
	for _, ia := range addrs {
		if n, ok := ia.(*net.IPNet); ok && n.IP.Equal(addr.IP) {
			got = n
		}
	}
	require.NotNil(t, got, "assigned address must be visible on the interface")

	// With no netmask request the kernel keeps its classful default,
	// which for a 10.0.0.0 address is /8.
	assert.Equal(t, net.IPMask(net.CIDRMask(8, 32)), got.Mask)
}
