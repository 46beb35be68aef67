package progress

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Loads in sysinfo(2) are fixed point with 16 fractional bits.
const loadScale = 1 << 16

func SystemLoad() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, errors.WithStack(err)
	}
	return float64(info.Loads[0]) / loadScale, nil
}
