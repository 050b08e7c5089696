package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// probeDevice walks the static node pool /dev/<kind>0, /dev/<kind>1, ...
// until one opens. The driver creates the nodes in a contiguous block, so
// the first missing node marks the end of the pool rather than a gap;
// nodes that fail to open for any other reason (typically busy) are
// skipped.
func probeDevice(open func(path string) (*os.File, error), kind string) (*os.File, string, error) {
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s%d", kind, i)
		file, err := open("/dev/" + name)
		if err == nil {
			return file, name, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("no free %s device: %w", kind, ErrDeviceUnavailable)
		}
	}
}
