package adapter

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Errors reported by this package. Match them with errors.Is; kernel
// rejections outside this taxonomy propagate as wrapped errnos.
var (
	// ErrDeviceUnavailable means no usable device node exists: the cloning
	// device is missing and could not be created, or the static node pool
	// is exhausted.
	ErrDeviceUnavailable = errors.New("no virtual adapter device available")

	// ErrPermissionDenied means the kernel refused the request for lack of
	// privilege.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument means a caller-supplied value (name, prefix
	// length, MTU) is out of range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNameResolution means the interface name could not be determined
	// from an open descriptor.
	ErrNameResolution = errors.New("interface name resolution failed")

	// ErrUnsupported means the operation cannot work on this platform
	// family; no kernel call was attempted.
	ErrUnsupported = errors.New("operation not supported on this platform")
)

// classify maps kernel errnos onto the package taxonomy without losing the
// original error from the chain.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EACCES):
		return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// alreadyAssigned reports whether err is the kernel saying the address is
// already present, which configuration treats as success.
func alreadyAssigned(err error) bool {
	return errors.Is(err, os.ErrExist)
}
