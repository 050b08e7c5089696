//go:build !linux && !darwin

package adapter

import (
	"fmt"
	"net"
	"os"

	"github.com/go-logr/logr"
)

type unsupportedSys struct{}

func newSys() sys { return unsupportedSys{} }

func (unsupportedSys) open(Layer, string, bool, logr.Logger) (*os.File, string, error) {
	return nil, "", fmt.Errorf("virtual network adapters: %w", ErrUnsupported)
}

func (unsupportedSys) resolveName(*os.File) (string, error) { return "", ErrUnsupported }
func (unsupportedSys) setState(string, bool) error          { return ErrUnsupported }
func (unsupportedSys) setMTU(string, int) error             { return ErrUnsupported }
func (unsupportedSys) addIPv4(string, net.IP, int) error    { return ErrUnsupported }
func (unsupportedSys) addIPv6(string, net.IP, int) error    { return ErrUnsupported }
func (unsupportedSys) setPeer(string, net.IP) error         { return ErrUnsupported }
func (unsupportedSys) destroyOnClose() bool                 { return false }
func (unsupportedSys) destroy(string) error                 { return ErrUnsupported }
