package tracking

import (
	"errors"
	"fmt"
)

// DefaultHistoryCap is the number of readings kept in history (trim window 0..1000).
const DefaultHistoryCap = 1001

// BootstrapReading seeds an empty store so consumers always have a map center.
var BootstrapReading = Reading{
	Latitude:  55.752488,
	Longitude: 12.524214,
	Timestamp: "System Start",
}

// ErrStoreUnavailable is returned (wrapped) by store backends when the
// persistence layer cannot be reached.
var ErrStoreUnavailable = errors.New("store unavailable")

// Reading is a normalized GPS observation.
// Timestamp is an opaque feed-supplied token; no ordering is derived from it.
type Reading struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

// Validate checks the coordinate ranges. NaN fails both checks.
func (r Reading) Validate() error {
	if !(r.Latitude >= -90 && r.Latitude <= 90) {
		return fmt.Errorf("latitude %v out of range [-90, 90]", r.Latitude)
	}
	if !(r.Longitude >= -180 && r.Longitude <= 180) {
		return fmt.Errorf("longitude %v out of range [-180, 180]", r.Longitude)
	}
	return nil
}
