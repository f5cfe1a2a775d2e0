// Package coordinator owns the periodic poll cycle: fetch the current ride,
// normalize it, publish a snapshot to listeners, and pick the next interval
// from the observed ride state.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/clock"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/observability"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/uber"
)

// Poll interval baselines.
const (
	IntervalActive   = 10 * time.Second
	IntervalInactive = 60 * time.Second
	IntervalError    = 300 * time.Second

	// Consecutive failures before backing off to IntervalError.
	maxErrorCount = 3

	tickTimeout = 45 * time.Second
)

// RideAPI is the slice of the ride client the coordinator needs.
type RideAPI interface {
	GetCurrentRide(ctx context.Context) (json.RawMessage, error)
	GetRideReceipt(ctx context.Context, requestID string) (json.RawMessage, error)
	GetRideMap(ctx context.Context, requestID string) (json.RawMessage, error)
	GetTripHistory(ctx context.Context, limit, offset int) ([]uber.HistoryItem, error)
}

// Snapshot is the published result of one poll tick. Consumers read the
// latest snapshot only; no history is retained.
type Snapshot struct {
	HasActiveRide bool             `json:"has_active_ride"`
	Ride          *uber.RideRecord `json:"ride,omitempty"`
	Receipt       json.RawMessage  `json:"receipt,omitempty"`
	Map           json.RawMessage  `json:"map,omitempty"`
	LastUpdate    time.Time        `json:"last_update"`
}

// Listener funcs for the host-facing signals.
type (
	UpdateListener  func(Snapshot)
	FailureListener func(err error)
	StatusListener  func(oldStatus, newStatus string)
)

// Coordinator runs the tick loop. All poll state (interval, error count,
// last status) is mutated only from within a tick; ticks never overlap.
type Coordinator struct {
	api    RideAPI
	clock  clock.Clock
	logger *zap.Logger

	mu         sync.RWMutex
	data       Snapshot
	interval   time.Duration
	errorCount int
	lastStatus string

	updateListeners  []UpdateListener
	failureListeners []FailureListener
	statusListeners  []StatusListener

	refreshChan chan struct{}
	stopChan    chan struct{}
	stoppedChan chan struct{}
	started     bool
}

// NewCoordinator creates a stopped coordinator at the inactive baseline.
func NewCoordinator(api RideAPI, clk clock.Clock, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		api:         api,
		clock:       clk,
		logger:      logger.Named("coordinator"),
		interval:    IntervalInactive,
		refreshChan: make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// OnUpdate registers a listener for published snapshots.
func (c *Coordinator) OnUpdate(fn UpdateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateListeners = append(c.updateListeners, fn)
}

// OnUpdateFailed registers a listener for failed ticks.
func (c *Coordinator) OnUpdateFailed(fn FailureListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureListeners = append(c.failureListeners, fn)
}

// OnStatusChanged registers a listener for ride status transitions. The old
// status is empty when no status had been observed yet.
func (c *Coordinator) OnStatusChanged(fn StatusListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
}

// Start runs an immediate first poll and then launches the tick loop.
func (c *Coordinator) Start() error {
	c.logger.Info("Starting ride coordinator")

	if err := c.Poll(context.Background()); err != nil {
		// First poll failing is not fatal; the loop keeps retrying on the
		// schedule the failure produced.
		c.logger.Warn("Initial poll failed", zap.Error(err))
	}

	go c.run()
	c.started = true

	c.logger.Info("Ride coordinator started", zap.Duration("interval", c.Interval()))
	return nil
}

// Stop terminates the tick loop and waits for it to exit.
func (c *Coordinator) Stop() {
	if !c.started {
		return
	}
	c.logger.Info("Stopping ride coordinator")
	close(c.stopChan)
	<-c.stoppedChan
	c.started = false
}

// RefreshNow schedules an immediate poll tick. Non-blocking; collapses into
// the already-pending request when one exists.
func (c *Coordinator) RefreshNow() {
	select {
	case c.refreshChan <- struct{}{}:
	default:
	}
}

// Data returns the latest published snapshot.
func (c *Coordinator) Data() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// Interval returns the interval scheduled for the next tick.
func (c *Coordinator) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

func (c *Coordinator) run() {
	defer close(c.stoppedChan)

	for {
		select {
		case <-c.clock.After(c.Interval()):
		case <-c.refreshChan:
			c.logger.Debug("Immediate refresh requested")
		case <-c.stopChan:
			c.logger.Info("Tick loop stopped")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		if err := c.Poll(ctx); err != nil {
			c.logger.Error("Poll tick failed", zap.Error(err))
		}
		cancel()
	}
}

// Poll executes one tick: fetch, normalize, publish, and decide the next
// interval. Errors never escape the tick boundary beyond the returned
// update-failed signal.
func (c *Coordinator) Poll(ctx context.Context) error {
	raw, err := c.api.GetCurrentRide(ctx)
	if err != nil {
		return c.failTick(err)
	}

	if raw == nil {
		c.completeTick(Snapshot{HasActiveRide: false, LastUpdate: c.clock.Now()}, "", IntervalInactive)
		observability.PollTicksTotal.WithLabelValues("inactive").Inc()
		observability.ActiveRide.Set(0)
		return nil
	}

	ride := uber.ParseRideData(raw)
	snap := Snapshot{
		HasActiveRide: true,
		Ride:          &ride,
		LastUpdate:    c.clock.Now(),
	}

	interval := IntervalInactive
	if uber.IsActiveStatus(ride.Status) {
		interval = IntervalActive
		c.fetchRideDetails(ctx, &snap, ride.RequestID)
	}

	c.completeTick(snap, ride.Status, interval)
	observability.PollTicksTotal.WithLabelValues("active").Inc()
	observability.ActiveRide.Set(1)
	return nil
}

// fetchRideDetails opportunistically attaches receipt and map data to an
// active ride. Either being unavailable never fails the tick.
func (c *Coordinator) fetchRideDetails(ctx context.Context, snap *Snapshot, requestID string) {
	if requestID == "" {
		return
	}

	if receipt, err := c.api.GetRideReceipt(ctx, requestID); err != nil {
		c.logger.Debug("Receipt not available for current ride", zap.Error(err))
	} else {
		snap.Receipt = receipt
	}

	if mapData, err := c.api.GetRideMap(ctx, requestID); err != nil {
		c.logger.Debug("Map data not available for current ride", zap.Error(err))
	} else {
		snap.Map = mapData
	}
}

// completeTick stores the snapshot, resets error state, applies the next
// interval and fires listeners.
func (c *Coordinator) completeTick(snap Snapshot, status string, interval time.Duration) {
	c.mu.Lock()
	c.data = snap
	c.errorCount = 0
	oldInterval := c.interval
	c.interval = interval
	oldStatus := c.lastStatus
	c.lastStatus = status
	updates := append([]UpdateListener(nil), c.updateListeners...)
	statuses := append([]StatusListener(nil), c.statusListeners...)
	c.mu.Unlock()

	if oldInterval != interval {
		c.logger.Debug("Poll interval changed",
			zap.Duration("old", oldInterval),
			zap.Duration("new", interval))
	}
	observability.PollIntervalSeconds.Set(interval.Seconds())

	if status != oldStatus && status != "" {
		c.logger.Info("Ride status changed",
			zap.String("old", oldStatus),
			zap.String("new", status))
		for _, fn := range statuses {
			fn(oldStatus, status)
		}
	}

	for _, fn := range updates {
		fn(snap)
	}
}

// failTick counts the failure, escalates the interval once the threshold is
// reached, and surfaces a single update-failed signal.
func (c *Coordinator) failTick(cause error) error {
	c.mu.Lock()
	c.errorCount++
	count := c.errorCount
	if count >= maxErrorCount {
		c.interval = IntervalError
	}
	failures := append([]FailureListener(nil), c.failureListeners...)
	c.mu.Unlock()

	c.logger.Error("Failed to fetch ride data",
		zap.Int("error_count", count),
		zap.Error(cause))
	if count >= maxErrorCount {
		c.logger.Warn("Repeated failures, backing off",
			zap.Duration("interval", IntervalError))
	}

	observability.PollTicksTotal.WithLabelValues("error").Inc()
	observability.UpdateFailuresTotal.Inc()
	observability.PollIntervalSeconds.Set(c.Interval().Seconds())

	err := fmt.Errorf("update failed: %w", cause)
	for _, fn := range failures {
		fn(err)
	}
	return err
}

// RideHistory fetches past trips on demand, outside the tick loop.
func (c *Coordinator) RideHistory(ctx context.Context, limit int) ([]uber.HistoryItem, error) {
	items, err := c.api.GetTripHistory(ctx, limit, 0)
	if err != nil {
		c.mu.RLock()
		failures := append([]FailureListener(nil), c.failureListeners...)
		c.mu.RUnlock()

		wrapped := fmt.Errorf("update failed: %w", err)
		for _, fn := range failures {
			fn(wrapped)
		}
		return nil, wrapped
	}
	return items, nil
}
