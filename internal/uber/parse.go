package uber

import "encoding/json"

// rideWire mirrors the nested JSON shape of the current-ride payload.
// Decoding is tolerant: absent objects stay nil, absent fields stay zero.
type rideWire struct {
	RequestID string `json:"request_id"`
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
	Driver    *struct {
		Name        string  `json:"name"`
		PhoneNumber string  `json:"phone_number"`
		SMSNumber   string  `json:"sms_number"`
		Rating      float64 `json:"rating"`
		PictureURL  string  `json:"picture_url"`
	} `json:"driver"`
	Vehicle *struct {
		Make         string `json:"make"`
		Model        string `json:"model"`
		Color        string `json:"color"`
		LicensePlate string `json:"license_plate"`
		PictureURL   string `json:"picture_url"`
	} `json:"vehicle"`
	Pickup      *wireWaypoint `json:"pickup"`
	Destination *wireWaypoint `json:"destination"`
	Location    *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Bearing   float64 `json:"bearing"`
	} `json:"location"`
	SurgeMultiplier *float64 `json:"surge_multiplier"`
	Fare            *Fare    `json:"fare"`
	Shared          bool     `json:"shared"`
}

type wireWaypoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	ETA       float64 `json:"eta"`
}

// ParseRideData normalizes a raw current-ride payload into a RideRecord.
// It is a total function: nil or malformed input yields the zero record, and
// missing fields fall back to zero values. Progress is a placeholder
// heuristic, not a distance calculation: 100 for completed rides, a flat 50
// while in progress, 0 otherwise.
func ParseRideData(raw json.RawMessage) RideRecord {
	var rec RideRecord
	if len(raw) == 0 {
		return rec
	}

	var wire rideWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return rec
	}

	rec.RequestID = wire.RequestID
	rec.ProductID = wire.ProductID
	rec.Status = wire.Status
	rec.Shared = wire.Shared

	if wire.Driver != nil {
		rec.Driver = Driver{
			Name:        wire.Driver.Name,
			PhoneNumber: wire.Driver.PhoneNumber,
			SMSNumber:   wire.Driver.SMSNumber,
			Rating:      wire.Driver.Rating,
			PictureURL:  wire.Driver.PictureURL,
		}
	}
	if wire.Vehicle != nil {
		rec.Vehicle = Vehicle{
			Make:         wire.Vehicle.Make,
			Model:        wire.Vehicle.Model,
			Color:        wire.Vehicle.Color,
			LicensePlate: wire.Vehicle.LicensePlate,
			PictureURL:   wire.Vehicle.PictureURL,
		}
	}
	if wire.Pickup != nil {
		rec.Pickup = Waypoint(*wire.Pickup)
	}
	if wire.Destination != nil {
		rec.Destination = Waypoint(*wire.Destination)
	}
	if wire.Location != nil {
		rec.Location = Location{
			Latitude:  wire.Location.Latitude,
			Longitude: wire.Location.Longitude,
			Bearing:   wire.Location.Bearing,
		}
	}

	// The API omits the multiplier when there is no surge.
	rec.SurgeMultiplier = 1.0
	if wire.SurgeMultiplier != nil {
		rec.SurgeMultiplier = *wire.SurgeMultiplier
	}
	if wire.Fare != nil {
		rec.Fare = *wire.Fare
	}

	switch rec.Status {
	case StatusCompleted:
		rec.ProgressPercentage = 100
	case StatusInProgress:
		rec.ProgressPercentage = 50
	default:
		rec.ProgressPercentage = 0
	}

	return rec
}
