package acpi

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/anhol/ryzenppd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWriterIsNoOp(t *testing.T) {
	w := NewWriter("", filepath.Join(t.TempDir(), "does-not-exist"))

	assert.False(t, w.Enabled())
	require.NoError(t, w.Apply(0x1fb001), "A disabled writer must never fail")
}

func TestApplyWritesFormattedCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	w := NewWriter("\\_SB.PCI0.LPC0.EC0.VPC0.DYTC", path)
	require.True(t, w.Enabled())
	require.NoError(t, w.Apply(0x1fb001))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\\_SB.PCI0.LPC0.EC0.VPC0.DYTC 0x1fb001", string(data))
}

func TestApplyFailsWhenModuleUnloaded(t *testing.T) {
	w := NewWriter("\\_SB.DYTC", filepath.Join(t.TempDir(), "missing"))

	err := w.Apply(0x13b001)
	require.Error(t, err)
	assert.Equal(t, ErrModuleNotLoaded, errors.CodeOf(err))
}

func TestCheckSupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.NoError(t, CheckSupported(path))

	err := CheckSupported(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ErrModuleNotLoaded, errors.CodeOf(err))
}

func TestErrorResponseDetection(t *testing.T) {
	assert.True(t, responseIndicatesError("Error: AE_NOT_FOUND"))
	assert.False(t, responseIndicatesError("0x0"))
	assert.False(t, responseIndicatesError(""))
}
