package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/anhol/ryzenppd/internal/config"
	"codeberg.org/anhol/ryzenppd/internal/errors"
	"codeberg.org/anhol/ryzenppd/internal/power"
	"codeberg.org/anhol/ryzenppd/internal/ryzenadj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setCall struct {
	limit string
	value int
}

type fakeAdjuster struct {
	mu        sync.Mutex
	values    map[string]float64
	getErr    error
	setErr    map[string]error
	refreshes int
	sets      []setCall
}

func (f *fakeAdjuster) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeAdjuster) Get(limit string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}

	return f.values[limit], nil
}

func (f *fakeAdjuster) Set(limit string, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setErr[limit]; err != nil {
		return err
	}
	f.sets = append(f.sets, setCall{limit: limit, value: value})

	return nil
}

func (f *fakeAdjuster) Close() {}

func (f *fakeAdjuster) setCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]setCall(nil), f.sets...)
}

func (f *fakeAdjuster) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.refreshes
}

type fakeWriter struct {
	mu      sync.Mutex
	enabled bool
	cmds    []uint32
}

func (f *fakeWriter) Enabled() bool { return f.enabled }

func (f *fakeWriter) Apply(cmd uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)

	return nil
}

func (f *fakeWriter) commands() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]uint32(nil), f.cmds...)
}

func testConfig() *config.Config {
	return &config.Config{
		LogLevel: "info",
		RyzenAdj: config.RyzenAdj{
			Limits:  []string{"stapm_limit", "fast_limit", "slow_limit"},
			Monitor: "stapm_limit",
		},
		Profiles: map[string][]int{
			"low-power":   {10000, 15000, 12000},
			"balanced":    {15000, 20000, 15000},
			"performance": {25000, 30000, 25000},
		},
		DYTC: config.DYTC{
			Method: "\\_SB.PCI0.LPC0.EC0.VPC0.DYTC",
			Modes: map[string]uint32{
				"low-power":   0x13b001,
				"balanced":    0x1fb001,
				"performance": 0x12b001,
			},
		},
		AC:      config.Policy{Profile: "balanced", PlatformProfile: "balanced", UpdateRate: 0.02},
		Battery: config.Policy{Profile: "low-power", PlatformProfile: "low-power", UpdateRate: 0.02},
	}
}

func newTestController(cfg *config.Config, adj ryzenadj.Adjuster, writer *fakeWriter) *Controller {
	return New(cfg, adj, writer, nil, power.AC)
}

func TestApplySkipsWritesWhenMonitoredValueMatches(t *testing.T) {
	cfg := testConfig()
	adj := &fakeAdjuster{values: map[string]float64{"stapm_limit": 15.0}}
	c := newTestController(cfg, adj, &fakeWriter{enabled: true})

	c.applyProfile(context.Background(), power.AC, cfg.AC)

	assert.Equal(t, 1, adj.refreshCount(), "Expected one refresh per cycle")
	assert.Empty(t, adj.setCalls(), "Expected no writes when target matches read-back")
}

func TestApplyWritesEveryLimitInOrderOnDrift(t *testing.T) {
	cfg := testConfig()
	cfg.AC.Profile = "performance"
	adj := &fakeAdjuster{values: map[string]float64{"stapm_limit": 15.0}}
	c := newTestController(cfg, adj, &fakeWriter{enabled: true})

	c.applyProfile(context.Background(), power.AC, cfg.AC)

	assert.Equal(t, []setCall{
		{"stapm_limit", 25000},
		{"fast_limit", 30000},
		{"slow_limit", 25000},
	}, adj.setCalls(), "Expected all limits written once in configured order")
}

func TestApplyWritesFullProfileWhenMonitorReadFails(t *testing.T) {
	cfg := testConfig()
	adj := &fakeAdjuster{
		values: map[string]float64{"stapm_limit": 15.0},
		getErr: errors.New().New(ryzenadj.ErrValueUnavailable),
	}
	c := newTestController(cfg, adj, &fakeWriter{enabled: true})

	c.applyProfile(context.Background(), power.AC, cfg.AC)

	assert.Len(t, adj.setCalls(), 3, "Expected full write when read-back is unknown")
}

func TestApplyContinuesAfterSetFailure(t *testing.T) {
	cfg := testConfig()
	cfg.AC.Profile = "performance"
	adj := &fakeAdjuster{
		values: map[string]float64{"stapm_limit": 15.0},
		setErr: map[string]error{"fast_limit": errors.New().New(ryzenadj.ErrRejectedSMU)},
	}
	c := newTestController(cfg, adj, &fakeWriter{enabled: true})

	c.applyProfile(context.Background(), power.AC, cfg.AC)

	assert.Equal(t, []setCall{
		{"stapm_limit", 25000},
		{"slow_limit", 25000},
	}, adj.setCalls(), "Expected remaining limits written after a rejected field")
}

func TestPowerSourceChangeWritesModeAndWakes(t *testing.T) {
	cfg := testConfig()
	writer := &fakeWriter{enabled: true}
	c := newTestController(cfg, &fakeAdjuster{}, writer)

	c.PowerSourceChanged(false)

	assert.Equal(t, power.Battery, c.Source())
	assert.Equal(t, []uint32{0x13b001}, writer.commands(), "Expected exactly one write with the battery mode")
	assert.Len(t, c.wake, 1, "Expected a pending wake pulse")
}

func TestPowerSourceUnchangedIsIgnored(t *testing.T) {
	cfg := testConfig()
	writer := &fakeWriter{enabled: true}
	c := newTestController(cfg, &fakeAdjuster{}, writer)

	c.PowerSourceChanged(true)

	assert.Equal(t, power.AC, c.Source())
	assert.Empty(t, writer.commands(), "Expected no mode write without an actual change")
	assert.Empty(t, c.wake, "Expected no wake pulse without an actual change")
}

func TestResumeReappliesModeForCurrentSource(t *testing.T) {
	cfg := testConfig()
	writer := &fakeWriter{enabled: true}
	c := newTestController(cfg, &fakeAdjuster{}, writer)

	c.SleepStateChanged(false)

	assert.Equal(t, []uint32{0x1fb001}, writer.commands(), "Expected one write with the AC mode")
	assert.Empty(t, c.wake, "Resume must not trigger a profile re-application")
}

func TestEnteringSleepDoesNothing(t *testing.T) {
	cfg := testConfig()
	writer := &fakeWriter{enabled: true}
	c := newTestController(cfg, &fakeAdjuster{}, writer)

	c.SleepStateChanged(true)

	assert.Empty(t, writer.commands())
	assert.Empty(t, c.wake)
}

func TestRunAppliesModeOnEntryAndStopsCleanly(t *testing.T) {
	cfg := testConfig()
	cfg.AC.UpdateRate = 10 // park the loop in its wait
	adj := &fakeAdjuster{values: map[string]float64{"stapm_limit": 15.0}}
	writer := &fakeWriter{enabled: true}
	c := newTestController(cfg, adj, writer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return adj.refreshCount() == 1
	}, time.Second, time.Millisecond, "Expected the first cycle to run")
	assert.Equal(t, []uint32{0x1fb001}, writer.commands(), "Expected the platform mode applied on entry")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	refreshes := adj.refreshCount()
	sets := len(adj.setCalls())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, refreshes, adj.refreshCount(), "Expected no hardware calls after Run returned")
	assert.Equal(t, sets, len(adj.setCalls()))
}

func TestPowerSourceChangeWakesWaitingLoop(t *testing.T) {
	cfg := testConfig()
	cfg.AC.UpdateRate = 10
	cfg.Battery.UpdateRate = 10
	adj := &fakeAdjuster{values: map[string]float64{"stapm_limit": 15.0}}
	c := newTestController(cfg, adj, &fakeWriter{enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return adj.refreshCount() == 1
	}, time.Second, time.Millisecond)

	// The loop is now parked on a 10s interval; the event must cut it short
	c.PowerSourceChanged(false)

	require.Eventually(t, func() bool {
		return adj.refreshCount() >= 2
	}, time.Second, time.Millisecond, "Expected an immediate re-apply after the power event")

	// The new cycle writes the battery profile
	require.Eventually(t, func() bool {
		calls := adj.setCalls()
		return len(calls) == 3 && calls[0] == setCall{"stapm_limit", 10000}
	}, time.Second, time.Millisecond, "Expected the battery profile written after the switch")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestWakePulseRaisedWhileBusyIsNotLost(t *testing.T) {
	cfg := testConfig()
	c := newTestController(cfg, &fakeAdjuster{}, &fakeWriter{})

	// Raise twice without a waiter; a single pulse must remain pending
	c.requestReapply()
	c.requestReapply()

	select {
	case <-c.wake:
	default:
		t.Fatal("Expected a pending wake pulse")
	}
	assert.Empty(t, c.wake, "Expected the pulse consumed on observe")
}
