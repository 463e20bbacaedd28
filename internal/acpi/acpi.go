// Package acpi writes DYTC platform profile commands through the acpi_call
// kernel module.
package acpi

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"codeberg.org/anhol/ryzenppd/internal/errors"
)

// DefaultCallPath is the pseudo-file exposed by the acpi_call kernel module
const DefaultCallPath = "/proc/acpi/call"

// Writer issues platform firmware mode commands. Apply is best-effort: the
// daemon logs failures and keeps running.
type Writer interface {
	// Apply invokes the configured ACPI method with the given command.
	// A no-op when no method is configured.
	Apply(cmd uint32) error

	// Enabled reports whether a method is configured
	Enabled() bool
}

type caller struct {
	method string
	path   string

	// The acpi_call channel is a single shared pseudo-file; calls from the
	// control loop and the event context must not interleave.
	mu sync.Mutex
}

// NewWriter returns a Writer invoking the given ACPI method through the
// acpi_call pseudo-file. An empty method yields a disabled no-op writer.
func NewWriter(method, path string) Writer {
	if path == "" {
		path = DefaultCallPath
	}

	return &caller{method: method, path: path}
}

// CheckSupported verifies that the acpi_call kernel module is loaded
func CheckSupported(path string) error {
	if path == "" {
		path = DefaultCallPath
	}
	if _, err := os.Stat(path); err != nil {
		return errors.New().WithMessage(ErrModuleNotLoaded, "kernel module acpi_call is not loaded")
	}

	return nil
}

func (c *caller) Enabled() bool {
	return c.method != ""
}

func (c *caller) Apply(cmd uint32) error {
	if !c.Enabled() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	errFactory := errors.New()
	call := fmt.Sprintf("%s %#x", c.method, cmd)

	f, err := os.OpenFile(c.path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return errFactory.WithMessage(ErrModuleNotLoaded, "kernel module acpi_call is unloaded")
		}
		return errFactory.Wrap(ErrCallFailed, err)
	}
	defer f.Close()

	if _, err := f.WriteString(call); err != nil {
		return errFactory.Wrap(ErrCallFailed, err)
	}

	// acpi_call reports the method result on read-back from offset zero
	buf := make([]byte, 256)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return errFactory.Wrap(ErrCallFailed, err)
	}
	if responseIndicatesError(string(buf[:n])) {
		return errFactory.WithData(ErrCallRejected, call)
	}

	return nil
}

// responseIndicatesError reports whether an acpi_call read-back signals a
// failed method invocation
func responseIndicatesError(resp string) bool {
	return strings.HasPrefix(resp, "Error")
}
