package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Area is the side length in millimetres of the square the guard device covers.
const Area = 500000.0

var models = []struct {
	model        string
	manufacturer string
	speedMin     float64 // mm per frame
	speedMax     float64
}{
	{"HRP-DP", "ProDröne", 4000, 9000},
	{"Mosquito", "MegaBuzzer Corp", 6000, 14000},
	{"Falcon", "Fly Fast Ltd", 10000, 20000},
	{"Eagle", "DroneGoat Inc", 3000, 8000},
	{"HRP-DP", "ProDröne", 2000, 6000},
}

// simDrone holds runtime state for a generated drone.
type simDrone struct {
	Drone
	heading  float64
	speedMin float64
	speedMax float64
}

// Generator synthesizes feed reports with drones wandering over the
// covered area. It stands in for the real feed in offline runs.
type Generator struct {
	DeviceID string
	rng      *rand.Rand
	drones   []*simDrone
	now      func() time.Time
	started  time.Time
}

// NewGenerator creates a generator with count drones placed at random.
func NewGenerator(deviceID string, count int, seed int64) *Generator {
	g := &Generator{
		DeviceID: deviceID,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
	g.started = g.now().UTC()
	for i := 0; i < count; i++ {
		m := models[i%len(models)]
		g.drones = append(g.drones, &simDrone{
			Drone: Drone{
				SerialNumber: fmt.Sprintf("SN-%010d", g.rng.Int63n(1e10)),
				Model:        m.model,
				Manufacturer: m.manufacturer,
				MAC:          g.mac(),
				IPv4:         fmt.Sprintf("%d.%d.%d.%d", 10+g.rng.Intn(200), g.rng.Intn(256), g.rng.Intn(256), 1+g.rng.Intn(254)),
				IPv6:         fmt.Sprintf("%x:%x:%x::%x", g.rng.Intn(0xffff), g.rng.Intn(0xffff), g.rng.Intn(0xffff), g.rng.Intn(0xffff)),
				Firmware:     fmt.Sprintf("%d.%d.%d", 1+g.rng.Intn(5), g.rng.Intn(10), g.rng.Intn(10)),
				PositionX:    g.rng.Float64() * Area,
				PositionY:    g.rng.Float64() * Area,
				Altitude:     2000 + g.rng.Float64()*4000,
			},
			heading:  g.rng.Float64() * 2 * math.Pi,
			speedMin: m.speedMin,
			speedMax: m.speedMax,
		})
	}
	return g
}

func (g *Generator) mac() string {
	b := make([]byte, 6)
	g.rng.Read(b)
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5])
}

// Next advances every drone one step and returns the resulting frame.
func (g *Generator) Next() *Report {
	now := g.now().UTC()
	r := &Report{
		Device: Device{
			ID:               g.DeviceID,
			ListRange:        int(Area),
			DeviceStarted:    g.started,
			UptimeSeconds:    int64(now.Sub(g.started).Seconds()),
			UpdateIntervalMs: 2000,
		},
		Timestamp: now.Truncate(time.Millisecond),
	}
	for _, d := range g.drones {
		g.step(d)
		r.Drones = append(r.Drones, d.Drone)
	}
	return r
}

// step moves the drone along its heading, turning slightly each frame and
// bouncing off the edges of the covered area.
func (g *Generator) step(d *simDrone) {
	d.heading += (g.rng.Float64() - 0.5) * math.Pi / 4
	speed := g.rng.Float64()*(d.speedMax-d.speedMin) + d.speedMin
	x := d.PositionX + speed*math.Cos(d.heading)
	y := d.PositionY + speed*math.Sin(d.heading)
	if x < 0 || x > Area {
		d.heading = math.Pi - d.heading
		x = math.Max(0, math.Min(Area, x))
	}
	if y < 0 || y > Area {
		d.heading = -d.heading
		y = math.Max(0, math.Min(Area, y))
	}
	d.PositionX, d.PositionY = x, y
	d.Altitude = math.Max(0, d.Altitude+(g.rng.Float64()*200-100))
}
