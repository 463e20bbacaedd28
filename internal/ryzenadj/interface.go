package ryzenadj

// Adjuster provides get/set access to the SMU power and thermal limit table.
// Limit names follow the libryzenadj convention: a limit "stapm_limit" is
// read through get_stapm_limit and written through set_stapm_limit. Every
// limit passed to Open is resolved up front; unknown names fail at startup.
type Adjuster interface {
	// Refresh re-reads the current limit table from the SMU. It must be
	// called before Get. The library silently no-ops on unsupported
	// platforms, so failures are not individually reported.
	Refresh()

	// Get returns the current value of a limit in hardware read-back units
	// (watts for power limits), rounded to three decimals
	Get(limit string) (float64, error)

	// Set writes a limit in hardware-native units (milliwatts for power
	// limits)
	Set(limit string, value int) error

	// Close releases the native handle
	Close()
}
