package adapter

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPv4MaskIsLeftJustified(t *testing.T) {
	for p := 0; p <= 31; p++ {
		assert.Equal(t, net.IPMask(net.CIDRMask(p, 32)), ipv4Mask(p), "prefix %d", p)
	}
}

func TestIPv4MaskKnownValues(t *testing.T) {
	assert.Equal(t, net.IPMask{0x80, 0x00, 0x00, 0x00}, ipv4Mask(1))
	assert.Equal(t, net.IPMask{0xFF, 0x00, 0x00, 0x00}, ipv4Mask(8))
	assert.Equal(t, net.IPMask{0xFF, 0xFF, 0xFF, 0x00}, ipv4Mask(24))
	assert.Equal(t, net.IPMask{0xFF, 0xFF, 0xFF, 0xFE}, ipv4Mask(31))
}
