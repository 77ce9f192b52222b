// Package geometry decides whether a drone is inside the no-fly zone.
package geometry

import "math"

// Default nest location and no-fly zone radius, in millimetres.
const (
	DefaultNestX  = 250000.0
	DefaultNestY  = 250000.0
	DefaultRadius = 100000.0
)

// Zone is a circular no-fly zone centred on the nest.
type Zone struct {
	NestX  float64
	NestY  float64
	Radius float64
}

// Default returns the standard zone.
func Default() Zone {
	return Zone{NestX: DefaultNestX, NestY: DefaultNestY, Radius: DefaultRadius}
}

// Distance returns the distance from (x, y) to the nest.
func (z Zone) Distance(x, y float64) float64 {
	dx, dy := x-z.NestX, y-z.NestY
	return math.Sqrt(dx*dx + dy*dy)
}

// Contains reports whether (x, y) lies inside or on the edge of the zone.
func (z Zone) Contains(x, y float64) bool {
	return z.Distance(x, y) <= z.Radius
}
