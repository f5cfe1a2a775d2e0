package uber

// Ride status values reported by the riders API.
const (
	StatusProcessing     = "processing"
	StatusNoDrivers      = "no_drivers_available"
	StatusAccepted       = "accepted"
	StatusArriving       = "arriving"
	StatusInProgress     = "in_progress"
	StatusDriverCanceled = "driver_canceled"
	StatusRiderCanceled  = "rider_canceled"
	StatusCompleted      = "completed"
)

// activeStatuses are the statuses considered "in progress" for polling and
// UI purposes.
var activeStatuses = map[string]bool{
	StatusProcessing: true,
	StatusAccepted:   true,
	StatusArriving:   true,
	StatusInProgress: true,
}

// IsActiveStatus reports whether status belongs to the active-ride set.
func IsActiveStatus(status string) bool {
	return activeStatuses[status]
}

// RideRecord is the normalized snapshot of a ride produced on every poll.
type RideRecord struct {
	RequestID          string   `json:"request_id"`
	ProductID          string   `json:"product_id"`
	Status             string   `json:"status"`
	Driver             Driver   `json:"driver"`
	Vehicle            Vehicle  `json:"vehicle"`
	Pickup             Waypoint `json:"pickup"`
	Destination        Waypoint `json:"destination"`
	Location           Location `json:"location"`
	SurgeMultiplier    float64  `json:"surge_multiplier"`
	Fare               Fare     `json:"fare"`
	Shared             bool     `json:"shared"`
	ProgressPercentage int      `json:"progress_percentage"`
}

// Driver describes the assigned driver.
type Driver struct {
	Name        string  `json:"name"`
	PhoneNumber string  `json:"phone_number"`
	SMSNumber   string  `json:"sms_number"`
	Rating      float64 `json:"rating"`
	PictureURL  string  `json:"picture_url"`
}

// Vehicle describes the assigned vehicle.
type Vehicle struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Color        string `json:"color"`
	LicensePlate string `json:"license_plate"`
	PictureURL   string `json:"picture_url"`
}

// Waypoint is a pickup or destination point. ETA is in minutes.
type Waypoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	ETA       float64 `json:"eta"`
}

// Location is the vehicle's current position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Bearing   float64 `json:"bearing"`
}

// Fare carries the fare quote attached to a ride, when present.
type Fare struct {
	Value        float64 `json:"value"`
	CurrencyCode string  `json:"currency_code"`
	Display      string  `json:"display"`
}

// HistoryItem is one completed trip from the history endpoint.
type HistoryItem struct {
	RequestID string  `json:"request_id"`
	Status    string  `json:"status"`
	Distance  float64 `json:"distance"`
	StartTime int64   `json:"start_time"`
	EndTime   int64   `json:"end_time"`
	StartCity City    `json:"start_city"`
}

// City names where a historical trip started.
type City struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Profile is the authenticated rider's profile.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Picture   string `json:"picture"`
	PromoCode string `json:"promo_code"`
	UUID      string `json:"uuid"`
}
