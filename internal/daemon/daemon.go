// Package daemon runs the profile-application control loop and reacts to
// power source and sleep events.
package daemon

import (
	"context"
	"sync"
	"time"

	"codeberg.org/anhol/ryzenppd/internal/acpi"
	"codeberg.org/anhol/ryzenppd/internal/config"
	"codeberg.org/anhol/ryzenppd/internal/logger"
	"codeberg.org/anhol/ryzenppd/internal/power"
	"codeberg.org/anhol/ryzenppd/internal/ryzenadj"
	"codeberg.org/anhol/ryzenppd/internal/telemetry"
)

// Controller re-applies the active power profile at the configured rate and
// immediately after a power source change. Event callbacks run on the bus
// dispatch goroutine, concurrently with the control loop.
type Controller struct {
	cfg        *config.Config
	adj        ryzenadj.Adjuster
	platform   acpi.Writer
	collector  telemetry.Collector
	monitorIdx int
	divisor    float64

	mu     sync.RWMutex
	source power.Source

	// wake holds at most one pending re-apply request. Raising it while the
	// loop is mid-cycle is not lost: the next wait drains it immediately.
	wake chan struct{}
}

// New creates a Controller seeded with the current power source. The
// configuration must already be validated.
func New(cfg *config.Config, adj ryzenadj.Adjuster, platform acpi.Writer,
	collector telemetry.Collector, initial power.Source,
) *Controller {
	c := &Controller{
		cfg:        cfg,
		adj:        adj,
		platform:   platform,
		collector:  collector,
		monitorIdx: cfg.MonitorIndex(),
		divisor:    cfg.MonitorDivisor(),
		source:     initial,
		wake:       make(chan struct{}, 1),
	}
	c.logSettings(initial)

	return c
}

// Source returns the currently active power source
func (c *Controller) Source() power.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.source
}

// Run applies the platform mode once, then re-applies the active profile
// until ctx is cancelled. Cancellation aborts a pending wait without a final
// apply; once Run returns no further hardware calls are made, so the caller
// may release the adjuster.
func (c *Controller) Run(ctx context.Context) error {
	c.applyPlatformMode(c.Source())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		source := c.Source()
		policy := c.cfg.Policy(source.String())
		c.applyProfile(ctx, source, policy)

		timer := time.NewTimer(policy.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// PowerSourceChanged handles a line power Online change. On an actual source
// change it writes the platform mode for the new source and wakes the
// control loop so the profile switches without waiting out the interval.
func (c *Controller) PowerSourceChanged(online bool) {
	next := power.FromOnline(online)

	c.mu.Lock()
	if c.source == next {
		c.mu.Unlock()
		return
	}
	c.source = next
	c.mu.Unlock()

	logger.Debug().Msgf("Switched power source to: %s", next)
	c.logSettings(next)
	c.applyPlatformMode(next)
	c.requestReapply()
}

// SleepStateChanged handles a prepare-for-sleep transition. Firmware state
// resets across suspend, so the platform mode is re-applied on resume. The
// profile is left to the regular polling cycle.
func (c *Controller) SleepStateChanged(entering bool) {
	if entering {
		return
	}

	logger.Debug().Msg("Woken up from sleep")
	c.applyPlatformMode(c.Source())
}

// requestReapply raises the wake pulse without blocking; a pulse already
// pending is enough
func (c *Controller) requestReapply() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// applyProfile writes the active profile unless the monitored limit already
// matches the target. The SMU write path is slow and inconsistent across
// fields; checking the single monitored field avoids rewriting everything
// when nothing changed.
func (c *Controller) applyProfile(ctx context.Context, source power.Source, policy config.Policy) {
	profile := c.cfg.Profiles[policy.Profile]
	monitor := c.cfg.RyzenAdj.Monitor
	target := float64(profile[c.monitorIdx]) / c.divisor

	c.adj.Refresh()

	written := false
	current, err := c.adj.Get(monitor)
	if err != nil {
		// Read-back unknown this cycle: skip the drift check and write the
		// full profile
		logger.Warn().Err(err).Msgf("Could not read monitored %s", monitor)
	} else if current == target {
		logger.Debug().Msgf("Monitored %s has not changed", monitor)
	} else {
		logger.Debug().Msgf("Monitored %s has changed: %v != %v", monitor, target, current)
	}

	if err != nil || current != target {
		for i, limit := range c.cfg.RyzenAdj.Limits {
			logger.Debug().Msgf("%s: %d", limit, profile[i])
			if setErr := c.adj.Set(limit, profile[i]); setErr != nil {
				logger.Error().Err(setErr).Msgf("Failed to set %s", limit)
				continue
			}
		}
		written = true
	}

	c.record(ctx, source, policy, current, target, written)
}

// applyPlatformMode writes the platform mode for the given source. Failures
// are logged only; the next power event or startup retries.
func (c *Controller) applyPlatformMode(source power.Source) {
	if !c.platform.Enabled() {
		return
	}

	policy := c.cfg.Policy(source.String())
	cmd, ok := c.cfg.DYTC.Modes[policy.PlatformProfile]
	if !ok {
		return
	}

	logger.Debug().Msgf("Applying platform profile %s (%#x)", policy.PlatformProfile, cmd)
	if err := c.platform.Apply(cmd); err != nil {
		logger.Error().Err(err).Msg("Could not write platform profile")
	}
}

func (c *Controller) record(ctx context.Context, source power.Source, policy config.Policy,
	current, target float64, written bool,
) {
	if c.collector == nil {
		return
	}

	snapshot := &telemetry.Snapshot{
		Timestamp:   time.Now(),
		PowerSource: source.String(),
		Profile:     policy.Profile,
		Monitored:   current,
		Target:      target,
		Written:     written,
	}
	if err := c.collector.Record(ctx, snapshot); err != nil {
		logger.Warn().Err(err).Msg("Failed to record telemetry snapshot")
	}
}

func (c *Controller) logSettings(source power.Source) {
	policy := c.cfg.Policy(source.String())
	logger.Debug().
		Str("power_source", source.String()).
		Str("profile", policy.Profile).
		Float64("update_rate_s", policy.UpdateRate).
		Str("platform_profile", policy.PlatformProfile).
		Msg("Active policy")
}
