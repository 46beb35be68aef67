//go:build !linux

package progress

import (
	"runtime"

	"github.com/pkg/errors"
)

func SystemLoad() (float64, error) {
	return 0, errors.Errorf("load average is not available on %s", runtime.GOOS)
}
