//go:build !linux || !cgo

package ryzenadj

import "codeberg.org/anhol/ryzenppd/internal/errors"

// Open is a stub for builds without cgo or outside Linux; the SMU is only
// reachable through libryzenadj on Linux
func Open(_ []string) (Adjuster, error) {
	return nil, errors.New().WithMessage(ErrLibraryUnavailable, "libryzenadj requires linux and cgo")
}
