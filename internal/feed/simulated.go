package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"birdnest/internal/telemetry"
)

// SimulatedSource serves frames from a telemetry.Generator.
type SimulatedSource struct {
	mu  sync.Mutex
	gen *telemetry.Generator
}

// NewSimulatedSource creates a source with count wandering drones.
func NewSimulatedSource(count int, seed int64) *SimulatedSource {
	return &SimulatedSource{gen: telemetry.NewGenerator("SIM-GUARD", count, seed)}
}

// Report advances the simulation by one frame.
func (s *SimulatedSource) Report(ctx context.Context) (*telemetry.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.Next(), nil
}

var (
	firstNames = []string{"Aino", "Eero", "Helmi", "Onni", "Venla", "Leevi", "Ilona", "Veikko"}
	lastNames  = []string{"Korhonen", "Virtanen", "Mäkinen", "Nieminen", "Hämäläinen", "Laine"}
)

// SimulatedPilots derives a stable pilot from each serial number.
type SimulatedPilots struct{}

// Pilot returns the derived pilot.
func (SimulatedPilots) Pilot(ctx context.Context, serial string) (*telemetry.Pilot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(serial))
	n := h.Sum64()
	first := firstNames[n%uint64(len(firstNames))]
	last := lastNames[(n/7)%uint64(len(lastNames))]
	return &telemetry.Pilot{
		PilotID:     fmt.Sprintf("P-%010d", n%1e10),
		FirstName:   first,
		LastName:    last,
		PhoneNumber: fmt.Sprintf("+358 %03d %07d", 40+n%10, n%1e7),
		Email:       strings.ToLower(first + "." + last + "@example.com"),
		CreatedDt:   time.Unix(1600000000+int64(n%1e7), 0).UTC(),
	}, nil
}
