package acpi

import "codeberg.org/anhol/ryzenppd/internal/errors"

const (
	ErrModuleNotLoaded = errors.ErrorCode("acpi_call_module_not_loaded")
	ErrCallFailed      = errors.ErrorCode("acpi_call_failed")
	ErrCallRejected    = errors.ErrorCode("acpi_call_rejected")
)
