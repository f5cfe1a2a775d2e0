package uber

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsActiveStatus(t *testing.T) {
	active := []string{StatusProcessing, StatusAccepted, StatusArriving, StatusInProgress}
	for _, status := range active {
		assert.True(t, IsActiveStatus(status), status)
	}

	inactive := []string{StatusCompleted, StatusDriverCanceled, StatusRiderCanceled, StatusNoDrivers, "", "unknown"}
	for _, status := range inactive {
		assert.False(t, IsActiveStatus(status), status)
	}
}

func TestParseRideDataFullPayload(t *testing.T) {
	raw := json.RawMessage(`{
		"request_id": "req-123",
		"product_id": "prod-456",
		"status": "in_progress",
		"driver": {"name": "Ada", "phone_number": "+15551234", "rating": 4.9},
		"vehicle": {"make": "Toyota", "model": "Prius", "license_plate": "UBER123"},
		"pickup": {"latitude": 37.77, "longitude": -122.41, "eta": 3},
		"destination": {"latitude": 37.79, "longitude": -122.39, "address": "Market St"},
		"location": {"latitude": 37.78, "longitude": -122.40, "bearing": 90},
		"surge_multiplier": 1.5,
		"fare": {"value": 12.5, "currency_code": "USD", "display": "$12.50"},
		"shared": true
	}`)

	rec := ParseRideData(raw)

	assert.Equal(t, "req-123", rec.RequestID)
	assert.Equal(t, "prod-456", rec.ProductID)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "Ada", rec.Driver.Name)
	assert.Equal(t, 4.9, rec.Driver.Rating)
	assert.Equal(t, "Prius", rec.Vehicle.Model)
	assert.Equal(t, 37.77, rec.Pickup.Latitude)
	assert.Equal(t, "Market St", rec.Destination.Address)
	assert.Equal(t, 90.0, rec.Location.Bearing)
	assert.Equal(t, 1.5, rec.SurgeMultiplier)
	assert.Equal(t, "$12.50", rec.Fare.Display)
	assert.True(t, rec.Shared)
	assert.Equal(t, 50, rec.ProgressPercentage)
}

func TestParseRideDataProgress(t *testing.T) {
	tests := []struct {
		status   string
		expected int
	}{
		{StatusCompleted, 100},
		{StatusInProgress, 50},
		{StatusAccepted, 0},
		{StatusArriving, 0},
		{StatusProcessing, 0},
		{"", 0},
	}

	for _, tt := range tests {
		raw, _ := json.Marshal(map[string]string{"status": tt.status})
		rec := ParseRideData(raw)
		assert.Equal(t, tt.expected, rec.ProgressPercentage, tt.status)
	}
}

func TestParseRideDataSurgeDefaultsToOne(t *testing.T) {
	rec := ParseRideData(json.RawMessage(`{"request_id": "r", "status": "accepted"}`))
	assert.Equal(t, 1.0, rec.SurgeMultiplier)
}

func TestParseRideDataPartialPayload(t *testing.T) {
	rec := ParseRideData(json.RawMessage(`{"request_id": "r", "status": "processing"}`))

	assert.Equal(t, "r", rec.RequestID)
	assert.Equal(t, Driver{}, rec.Driver)
	assert.Equal(t, Vehicle{}, rec.Vehicle)
	assert.Equal(t, Location{}, rec.Location)
	assert.Equal(t, Fare{}, rec.Fare)
}

func TestParseRideDataMalformedInput(t *testing.T) {
	assert.Equal(t, RideRecord{}, ParseRideData(nil))
	assert.Equal(t, RideRecord{}, ParseRideData(json.RawMessage(``)))
	assert.Equal(t, RideRecord{}, ParseRideData(json.RawMessage(`not json at all`)))
	assert.Equal(t, RideRecord{}, ParseRideData(json.RawMessage(`[1,2,3]`)))
}
