package ryzenadj

import "codeberg.org/anhol/ryzenppd/internal/errors"

const (
	// Initialization and lifecycle errors
	ErrLibraryUnavailable = errors.ErrorCode("ryzenadj_library_unavailable")
	ErrInitFailed         = errors.ErrorCode("ryzenadj_init_failed")
	ErrUnknownLimit       = errors.ErrorCode("ryzenadj_unknown_limit")

	// Per-call errors, mapped from libryzenadj status codes
	ErrUnsupportedFamily = errors.ErrorCode("ryzenadj_unsupported_on_family")
	ErrUnsupportedSMU    = errors.ErrorCode("ryzenadj_unsupported_on_smu")
	ErrRejectedSMU       = errors.ErrorCode("ryzenadj_rejected_by_smu")
	ErrUnknownFailure    = errors.ErrorCode("ryzenadj_unknown_failure")

	// Read-back errors (the library reports a NaN sentinel without a code)
	ErrValueUnavailable = errors.ErrorCode("ryzenadj_value_unavailable")
)

// libryzenadj set_* status codes
const (
	statusUnsupportedFamily = -1
	statusUnsupportedSMU    = -3
	statusRejectedSMU       = -4
)

// statusError maps a nonzero libryzenadj status code to a coded error
func statusError(limit string, status int) error {
	errFactory := errors.New()

	switch status {
	case 0:
		return nil
	case statusUnsupportedFamily:
		return errFactory.WithMessage(ErrUnsupportedFamily, limit+" is not supported on this family")
	case statusUnsupportedSMU:
		return errFactory.WithMessage(ErrUnsupportedSMU, limit+" is not supported on this SMU")
	case statusRejectedSMU:
		return errFactory.WithMessage(ErrRejectedSMU, limit+" is rejected by SMU")
	default:
		return errFactory.WithMessage(ErrUnknownFailure, limit+" failed").WithData(status)
	}
}
