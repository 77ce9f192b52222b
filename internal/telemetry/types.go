// Drone feed and pilot API types shared across packages
package telemetry

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Drone is a single drone observation from one feed frame.
// Coordinates are millimetres in the guard device's plane.
type Drone struct {
	SerialNumber string  `json:"serialNumber" xml:"serialNumber"`
	Model        string  `json:"model" xml:"model"`
	Manufacturer string  `json:"manufacturer" xml:"manufacturer"`
	MAC          string  `json:"mac" xml:"mac"`
	IPv4         string  `json:"ipv4" xml:"ipv4"`
	IPv6         string  `json:"ipv6" xml:"ipv6"`
	Firmware     string  `json:"firmware" xml:"firmware"`
	PositionY    float64 `json:"positionY" xml:"positionY"`
	PositionX    float64 `json:"positionX" xml:"positionX"`
	Altitude     float64 `json:"altitude" xml:"altitude"`
}

// Device describes the guard equipment that produced a report.
type Device struct {
	ID               string    `json:"deviceId" xml:"deviceId,attr"`
	ListRange        int       `json:"listRange" xml:"listRange"`
	DeviceStarted    time.Time `json:"deviceStarted" xml:"deviceStarted"`
	UptimeSeconds    int64     `json:"uptimeSeconds" xml:"uptimeSeconds"`
	UpdateIntervalMs int64     `json:"updateIntervalMs" xml:"updateIntervalMs"`
}

// Report is one frame of the drone feed.
type Report struct {
	Device    Device    `json:"device"`
	Timestamp time.Time `json:"snapshotTimestamp"`
	Drones    []Drone   `json:"drones"`
}

// Empty reports whether the frame carries no drones.
func (r *Report) Empty() bool {
	return r == nil || len(r.Drones) == 0
}

// Pilot identifies the operator registered for a drone.
type Pilot struct {
	PilotID     string    `json:"pilotId"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedDt   time.Time `json:"createdDt"`
	Email       string    `json:"email"`
}

// Name returns the pilot's full name.
func (p Pilot) Name() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Point is an (x, y) position in millimetres. It encodes as a two element
// JSON array.
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var xy [2]float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Positions maps an observation time in epoch milliseconds to a point.
type Positions map[int64]Point

// Clone returns an independent copy. A nil map stays nil.
func (p Positions) Clone() Positions {
	if p == nil {
		return nil
	}
	out := make(Positions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the timestamps in ascending order.
func (p Positions) Keys() []int64 {
	keys := make([]int64, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Trim keeps only the max most recent entries, deleting the rest in place.
// It reports how many entries were removed.
func (p Positions) Trim(max int) int {
	if max < 0 || len(p) <= max {
		return 0
	}
	keys := p.Keys()
	drop := keys[:len(keys)-max]
	for _, k := range drop {
		delete(p, k)
	}
	return len(drop)
}

// Millis converts t to epoch milliseconds, the key type of Positions.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
