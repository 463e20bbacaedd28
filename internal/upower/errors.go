package upower

import "codeberg.org/anhol/ryzenppd/internal/errors"

const (
	ErrBusUnavailable  = errors.ErrorCode("upower_system_bus_unavailable")
	ErrSubscribeFailed = errors.ErrorCode("upower_subscribe_failed")
)
