// Package coalescer decouples the arrival rate of location samples from the
// rate at which they are rendered. It holds at most one pending sample:
// newer samples overwrite older ones and a render tick drains the slot.
package coalescer

import (
	"sync"

	"github.com/UnknownOlympus/lookout/internal/models"
)

// State is the state of the pending slot.
type State int

const (
	// StateIdle means no sample is waiting to be rendered.
	StateIdle State = iota
	// StatePending means exactly one sample is waiting to be rendered.
	StatePending
)

func (s State) String() string {
	if s == StatePending {
		return "pending"
	}

	return "idle"
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithSupersededHook registers a function called whenever a sample is dropped
// without being rendered: either overwritten while pending or rejected as stale.
// The hook runs while the slot lock is held and must not call back into the Coalescer.
func WithSupersededHook(hook func()) Option {
	return func(c *Coalescer) {
		c.onSuperseded = hook
	}
}

// Coalescer is a last-write-wins slot of size one.
// OnSample and Tick are safe for concurrent use.
type Coalescer struct {
	mu          sync.Mutex
	pending     models.LocationSample
	hasPending  bool
	lastApplied models.LocationSample
	hasApplied  bool

	onSuperseded func()
}

// New creates an idle Coalescer.
func New(opts ...Option) *Coalescer {
	c := &Coalescer{}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// OnSample replaces the pending sample with sample. It never blocks on rendering
// and never fails. A sample timestamped strictly before the last sample handed out
// by Tick is discarded so the pending slot never goes back in time.
func (c *Coalescer) OnSample(sample models.LocationSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isStale(sample) {
		c.superseded()
		return
	}

	if c.hasPending {
		c.superseded()
	}
	c.pending = sample
	c.hasPending = true
}

// Tick hands out the pending sample and clears the slot.
// It returns false when nothing arrived since the previous Tick.
func (c *Coalescer) Tick() (models.LocationSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasPending {
		return models.LocationSample{}, false
	}

	sample := c.pending
	c.pending = models.LocationSample{}
	c.hasPending = false
	c.lastApplied = sample
	c.hasApplied = true

	return sample, true
}

// State reports whether a sample is waiting.
func (c *Coalescer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasPending {
		return StatePending
	}

	return StateIdle
}

func (c *Coalescer) isStale(sample models.LocationSample) bool {
	if !c.hasApplied || sample.Timestamp.IsZero() || c.lastApplied.Timestamp.IsZero() {
		return false
	}

	return sample.Timestamp.Before(c.lastApplied.Timestamp)
}

func (c *Coalescer) superseded() {
	if c.onSuperseded != nil {
		c.onSuperseded()
	}
}
