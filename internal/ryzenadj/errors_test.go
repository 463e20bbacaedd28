package ryzenadj

import (
	"testing"

	"codeberg.org/anhol/ryzenppd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorMapping(t *testing.T) {
	assert.NoError(t, statusError("set_stapm_limit", 0))

	err := statusError("set_stapm_limit", -1)
	require.Error(t, err)
	assert.Equal(t, ErrUnsupportedFamily, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "not supported on this family")

	err = statusError("set_fast_limit", -3)
	require.Error(t, err)
	assert.Equal(t, ErrUnsupportedSMU, errors.CodeOf(err))

	err = statusError("set_slow_limit", -4)
	require.Error(t, err)
	assert.Equal(t, ErrRejectedSMU, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "rejected by SMU")
}

func TestStatusErrorUnknownCode(t *testing.T) {
	err := statusError("set_tctl_temp", 7)
	require.Error(t, err)
	assert.Equal(t, ErrUnknownFailure, errors.CodeOf(err))
}
