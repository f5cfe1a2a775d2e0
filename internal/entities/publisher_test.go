package entities

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/clock"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/config"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/coordinator"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/ha"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/uber"
)

// fakeRideAPI serves queued current-ride responses, one per poll.
type fakeRideAPI struct {
	rides      []json.RawMessage
	pos        int
	history    []uber.HistoryItem
	historyErr error
	pollErr    error
}

func (f *fakeRideAPI) GetCurrentRide(ctx context.Context) (json.RawMessage, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.pos >= len(f.rides) {
		return nil, nil
	}
	body := f.rides[f.pos]
	f.pos++
	return body, nil
}

func (f *fakeRideAPI) GetRideReceipt(ctx context.Context, requestID string) (json.RawMessage, error) {
	return nil, errors.New("not available")
}

func (f *fakeRideAPI) GetRideMap(ctx context.Context, requestID string) (json.RawMessage, error) {
	return nil, errors.New("not available")
}

func (f *fakeRideAPI) GetTripHistory(ctx context.Context, limit, offset int) ([]uber.HistoryItem, error) {
	return f.history, f.historyErr
}

func rideJSON(status string) json.RawMessage {
	body, _ := json.Marshal(map[string]interface{}{
		"request_id": "req-1",
		"status":     status,
		"driver":     map[string]interface{}{"name": "Ada"},
		"vehicle": map[string]interface{}{
			"make": "Toyota", "model": "Prius", "license_plate": "UBER123",
		},
		"location": map[string]interface{}{
			"latitude": 37.78, "longitude": -122.4,
		},
	})
	return body
}

func setupPublisher(t *testing.T, api *fakeRideAPI, readOnly bool) (*Publisher, *ha.MockClient, *coordinator.Coordinator) {
	logger, _ := zap.NewDevelopment()
	mockClock := clock.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	coord := coordinator.NewCoordinator(api, mockClock, logger)

	mock := ha.NewMockClient()
	require.NoError(t, mock.Connect())

	cfg := config.Default()
	publisher := NewPublisher(mock, coord, cfg.Entities, cfg.HistoryLimit, logger, readOnly)
	require.NoError(t, publisher.Start())

	return publisher, mock, coord
}

func findCall(calls []ha.ServiceCall, domain, service, entityID string) *ha.ServiceCall {
	for i := range calls {
		call := calls[i]
		if call.Domain == domain && call.Service == service && call.Data["entity_id"] == entityID {
			return &calls[i]
		}
	}
	return nil
}

func TestPublishActiveRide(t *testing.T) {
	api := &fakeRideAPI{rides: []json.RawMessage{rideJSON("in_progress")}}
	publisher, mock, coord := setupPublisher(t, api, false)
	defer publisher.Stop()

	require.NoError(t, coord.Poll(context.Background()))

	calls := mock.GetServiceCalls()

	status := findCall(calls, "input_text", "set_value", "input_text.uber_ride_status")
	require.NotNil(t, status)
	assert.Equal(t, "in_progress", status.Data["value"])

	progress := findCall(calls, "input_number", "set_value", "input_number.uber_ride_progress")
	require.NotNil(t, progress)
	assert.Equal(t, 50.0, progress.Data["value"])

	location := findCall(calls, "input_text", "set_value", "input_text.uber_driver_location")
	require.NotNil(t, location)
	assert.Equal(t, "37.780000, -122.400000", location.Data["value"])

	driver := findCall(calls, "input_text", "set_value", "input_text.uber_driver_name")
	require.NotNil(t, driver)
	assert.Equal(t, "Ada", driver.Data["value"])

	vehicle := findCall(calls, "input_text", "set_value", "input_text.uber_vehicle")
	require.NotNil(t, vehicle)
	assert.Equal(t, "Toyota Prius (UBER123)", vehicle.Data["value"])

	attributes := findCall(calls, "input_text", "set_value", "input_text.uber_ride_attributes")
	require.NotNil(t, attributes)
	assert.Contains(t, attributes.Data["value"], `"request_id":"req-1"`)

	active := findCall(calls, "input_boolean", "turn_on", "input_boolean.uber_has_active_ride")
	assert.NotNil(t, active)
}

func TestPublishNoActiveRide(t *testing.T) {
	api := &fakeRideAPI{}
	publisher, mock, coord := setupPublisher(t, api, false)
	defer publisher.Stop()

	require.NoError(t, coord.Poll(context.Background()))

	calls := mock.GetServiceCalls()

	status := findCall(calls, "input_text", "set_value", "input_text.uber_ride_status")
	require.NotNil(t, status)
	assert.Equal(t, "no_active_ride", status.Data["value"])

	inactive := findCall(calls, "input_boolean", "turn_off", "input_boolean.uber_has_active_ride")
	assert.NotNil(t, inactive)
}

func TestStatusChangeNotification(t *testing.T) {
	api := &fakeRideAPI{rides: []json.RawMessage{
		rideJSON("arriving"),
		rideJSON("in_progress"),
	}}
	publisher, mock, coord := setupPublisher(t, api, false)
	defer publisher.Stop()

	require.NoError(t, coord.Poll(context.Background()))
	require.NoError(t, coord.Poll(context.Background()))

	var notifications []ha.ServiceCall
	for _, call := range mock.GetServiceCalls() {
		if call.Domain == "persistent_notification" {
			notifications = append(notifications, call)
		}
	}

	require.Len(t, notifications, 2)
	assert.Equal(t, "Ride status changed to arriving", notifications[0].Data["message"])
	assert.Equal(t, "Ride status changed from arriving to in_progress", notifications[1].Data["message"])
}

func TestAuthFailureNotification(t *testing.T) {
	api := &fakeRideAPI{pollErr: &uber.AuthenticationError{StatusCode: 401}}
	publisher, mock, coord := setupPublisher(t, api, false)
	defer publisher.Stop()

	require.Error(t, coord.Poll(context.Background()))

	var found bool
	for _, call := range mock.GetServiceCalls() {
		if call.Domain == "persistent_notification" {
			found = true
		}
	}
	assert.True(t, found, "expected a re-authorization notification")
}

func TestTransientFailureDoesNotNotify(t *testing.T) {
	api := &fakeRideAPI{pollErr: &uber.TransientNetworkError{Err: errors.New("timeout")}}
	publisher, mock, coord := setupPublisher(t, api, false)
	defer publisher.Stop()

	require.Error(t, coord.Poll(context.Background()))

	for _, call := range mock.GetServiceCalls() {
		assert.NotEqual(t, "persistent_notification", call.Domain)
	}
}

func TestHistoryButtonPostsSummary(t *testing.T) {
	api := &fakeRideAPI{
		history: []uber.HistoryItem{
			{RequestID: "r1"}, {RequestID: "r2"}, {RequestID: "r3"},
		},
	}
	publisher, mock, _ := setupPublisher(t, api, false)
	defer publisher.Stop()

	mock.SimulateStateChange("input_button.uber_get_ride_history", "2024-06-01T12:00:00+00:00")

	calls := mock.GetServiceCalls()
	var notification *ha.ServiceCall
	for i := range calls {
		if calls[i].Domain == "persistent_notification" {
			notification = &calls[i]
		}
	}
	require.NotNil(t, notification)
	assert.Equal(t, "Fetched 3 past trips", notification.Data["message"])
}

func TestRefreshButtonIgnoresUnknownState(t *testing.T) {
	api := &fakeRideAPI{}
	publisher, mock, _ := setupPublisher(t, api, false)
	defer publisher.Stop()

	// "unknown" is the helper's restore state, not a press
	mock.SimulateStateChange("input_button.uber_refresh_status", "unknown")
	assert.Empty(t, mock.GetServiceCalls())
}

func TestReadOnlyModeWritesNothing(t *testing.T) {
	api := &fakeRideAPI{rides: []json.RawMessage{rideJSON("in_progress")}}
	publisher, mock, coord := setupPublisher(t, api, true)
	defer publisher.Stop()

	require.NoError(t, coord.Poll(context.Background()))
	assert.Empty(t, mock.GetServiceCalls())
}
