// Package violation keeps the in-memory table of drones that have entered
// the no-fly zone.
package violation

import (
	"time"

	"birdnest/internal/telemetry"
)

// Violation is the stored state for one drone serial number.
type Violation struct {
	SerialNumber    string              `json:"serialNumber"`
	Model           string              `json:"model"`
	Manufacturer    string              `json:"manufacturer"`
	MAC             string              `json:"mac"`
	IPv4            string              `json:"ipv4"`
	IPv6            string              `json:"ipv6"`
	Firmware        string              `json:"firmware"`
	Altitude        float64             `json:"altitude"`
	PositionX       float64             `json:"positionX"`
	PositionY       float64             `json:"positionY"`
	ClosestDistance float64             `json:"closestDistance"`
	LastSeen        time.Time           `json:"lastSeen"`
	Positions       telemetry.Positions `json:"positions,omitempty"`
	Pilot           *telemetry.Pilot    `json:"pilot"`
}

// FromDrone builds a record from one feed observation.
func FromDrone(d telemetry.Drone) Violation {
	return Violation{
		SerialNumber: d.SerialNumber,
		Model:        d.Model,
		Manufacturer: d.Manufacturer,
		MAC:          d.MAC,
		IPv4:         d.IPv4,
		IPv6:         d.IPv6,
		Firmware:     d.Firmware,
		Altitude:     d.Altitude,
		PositionX:    d.PositionX,
		PositionY:    d.PositionY,
	}
}

// Clone returns a deep copy.
func (v Violation) Clone() Violation {
	out := v
	out.Positions = v.Positions.Clone()
	if v.Pilot != nil {
		p := *v.Pilot
		out.Pilot = &p
	}
	return out
}
