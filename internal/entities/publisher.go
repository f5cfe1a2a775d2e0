// Package entities maps published ride snapshots onto Home Assistant helper
// entities and watches the helper buttons that trigger the refresh and
// history actions.
package entities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/config"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/coordinator"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/ha"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/uber"
)

const noActiveRide = "no_active_ride"

const historyTimeout = 30 * time.Second

// Publisher writes ride state into the hub and wires the button helpers
// back to coordinator actions.
type Publisher struct {
	hub      ha.HubClient
	coord    *coordinator.Coordinator
	names    config.Entities
	logger   *zap.Logger
	readOnly bool

	historyLimit  int
	subscriptions []ha.Subscription
}

// NewPublisher creates an entity publisher. In read-only mode it logs what
// it would write instead of calling the hub.
func NewPublisher(
	hub ha.HubClient,
	coord *coordinator.Coordinator,
	names config.Entities,
	historyLimit int,
	logger *zap.Logger,
	readOnly bool,
) *Publisher {
	return &Publisher{
		hub:          hub,
		coord:        coord,
		names:        names,
		historyLimit: historyLimit,
		logger:       logger.Named("entities"),
		readOnly:     readOnly,
	}
}

// Start registers coordinator listeners and subscribes to the action
// buttons.
func (p *Publisher) Start() error {
	p.coord.OnUpdate(p.publish)
	p.coord.OnStatusChanged(p.notifyStatusChange)
	p.coord.OnUpdateFailed(p.handleFailure)

	refreshSub, err := p.hub.SubscribeStateChanges(
		"input_button."+p.names.RefreshButton, p.onRefreshPressed)
	if err != nil {
		return fmt.Errorf("failed to subscribe to refresh button: %w", err)
	}
	p.subscriptions = append(p.subscriptions, refreshSub)

	historySub, err := p.hub.SubscribeStateChanges(
		"input_button."+p.names.HistoryButton, p.onHistoryPressed)
	if err != nil {
		return fmt.Errorf("failed to subscribe to history button: %w", err)
	}
	p.subscriptions = append(p.subscriptions, historySub)

	p.logger.Info("Entity publisher started")
	return nil
}

// Stop removes the button subscriptions.
func (p *Publisher) Stop() {
	for _, sub := range p.subscriptions {
		sub.Unsubscribe()
	}
	p.subscriptions = nil
	p.logger.Info("Entity publisher stopped")
}

// publish writes one snapshot to the helper entities.
func (p *Publisher) publish(snap coordinator.Snapshot) {
	status := noActiveRide
	progress := 0.0
	location := "unavailable"
	driverName := ""
	vehicle := ""
	attributes := "{}"

	if snap.HasActiveRide && snap.Ride != nil {
		ride := snap.Ride
		if ride.Status != "" {
			status = ride.Status
		}
		progress = float64(ride.ProgressPercentage)
		if ride.Location.Latitude != 0 || ride.Location.Longitude != 0 {
			location = fmt.Sprintf("%.6f, %.6f", ride.Location.Latitude, ride.Location.Longitude)
		}
		driverName = ride.Driver.Name
		if ride.Vehicle.Make != "" {
			vehicle = fmt.Sprintf("%s %s (%s)", ride.Vehicle.Make, ride.Vehicle.Model, ride.Vehicle.LicensePlate)
		}
		if blob, err := json.Marshal(ride); err == nil {
			attributes = string(blob)
		}
	}

	if p.readOnly {
		p.logger.Info("READ-ONLY mode: Would publish ride state",
			zap.String("status", status),
			zap.Float64("progress", progress),
			zap.String("location", location))
		return
	}

	p.setText(p.names.Status, status)
	p.setNumber(p.names.Progress, progress)
	p.setText(p.names.DriverLocation, location)
	p.setText(p.names.DriverName, driverName)
	p.setText(p.names.Vehicle, vehicle)
	p.setText(p.names.Attributes, attributes)

	if err := p.hub.SetInputBoolean(p.names.HasActiveRide, snap.HasActiveRide); err != nil {
		p.logger.Error("Failed to set active-ride flag", zap.Error(err))
	}
}

func (p *Publisher) setText(name, value string) {
	if err := p.hub.SetInputText(name, value); err != nil {
		p.logger.Error("Failed to set input_text",
			zap.String("entity", name), zap.Error(err))
	}
}

func (p *Publisher) setNumber(name string, value float64) {
	if err := p.hub.SetInputNumber(name, value); err != nil {
		p.logger.Error("Failed to set input_number",
			zap.String("entity", name), zap.Error(err))
	}
}

// notifyStatusChange posts a persistent notification on ride status
// transitions.
func (p *Publisher) notifyStatusChange(oldStatus, newStatus string) {
	if p.readOnly {
		p.logger.Info("READ-ONLY mode: Would notify status change",
			zap.String("old", oldStatus), zap.String("new", newStatus))
		return
	}

	message := fmt.Sprintf("Ride status changed to %s", newStatus)
	if oldStatus != "" {
		message = fmt.Sprintf("Ride status changed from %s to %s", oldStatus, newStatus)
	}
	if err := p.hub.Notify("Uber Ride Tracker", message); err != nil {
		p.logger.Warn("Failed to post status notification", zap.Error(err))
	}
}

// handleFailure surfaces authentication failures to the operator; other
// failures are only logged (the coordinator already counts them).
func (p *Publisher) handleFailure(err error) {
	var authErr *uber.AuthenticationError
	if !errors.As(err, &authErr) {
		return
	}

	p.logger.Warn("Authentication failed, re-authorization required")
	if p.readOnly {
		return
	}
	if nerr := p.hub.Notify("Uber Ride Tracker",
		"Authentication with the Uber API failed. Re-authorize via the integration's /api/authorize endpoint."); nerr != nil {
		p.logger.Warn("Failed to post auth notification", zap.Error(nerr))
	}
}

// onRefreshPressed handles a press of the refresh button helper.
func (p *Publisher) onRefreshPressed(entityID string, oldState, newState *ha.State) {
	if !buttonPressed(oldState, newState) {
		return
	}
	p.logger.Info("Refresh requested from hub", zap.String("entity", entityID))
	p.coord.RefreshNow()
}

// onHistoryPressed fetches trip history and posts a summary notification.
func (p *Publisher) onHistoryPressed(entityID string, oldState, newState *ha.State) {
	if !buttonPressed(oldState, newState) {
		return
	}
	p.logger.Info("History requested from hub", zap.String("entity", entityID))

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	items, err := p.coord.RideHistory(ctx, p.historyLimit)
	if err != nil {
		p.logger.Error("Failed to fetch ride history", zap.Error(err))
		return
	}

	if p.readOnly {
		p.logger.Info("READ-ONLY mode: Would post history notification",
			zap.Int("count", len(items)))
		return
	}
	if err := p.hub.Notify("Uber Ride Tracker",
		fmt.Sprintf("Fetched %d past trips", len(items))); err != nil {
		p.logger.Warn("Failed to post history notification", zap.Error(err))
	}
}

// buttonPressed reports whether a state change is a real button press.
// input_button state is the press timestamp, so any change of a known state
// counts.
func buttonPressed(oldState, newState *ha.State) bool {
	if newState == nil || newState.State == "" || newState.State == "unknown" {
		return false
	}
	if oldState == nil {
		return true
	}
	return oldState.State != newState.State
}
