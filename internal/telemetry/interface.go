package telemetry

import (
	"context"
	"time"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot captures one control loop apply cycle
type Snapshot struct {
	Timestamp   time.Time
	PowerSource string
	Profile     string
	Monitored   float64 // monitored limit read-back, hardware units
	Target      float64 // profile target after unit conversion
	Written     bool    // whether the full profile was written this cycle
}
