package geometry

import "testing"

func TestDistanceAndContains(t *testing.T) {
	z := Default()
	cases := []struct {
		name   string
		x, y   float64
		dist   float64
		inside bool
	}{
		{"nest", 250000, 250000, 0, true},
		{"inside", 260000, 250000, 10000, true},
		{"edge", 250000, 350000, 100000, true},
		{"outside", 400000, 250000, 150000, false},
		{"diagonal", 280000, 290000, 50000, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := z.Distance(c.x, c.y); got != c.dist {
				t.Errorf("Distance = %f, want %f", got, c.dist)
			}
			if got := z.Contains(c.x, c.y); got != c.inside {
				t.Errorf("Contains = %v, want %v", got, c.inside)
			}
		})
	}
}

func TestCustomZone(t *testing.T) {
	z := Zone{NestX: 0, NestY: 0, Radius: 5}
	if !z.Contains(3, 4) {
		t.Errorf("expected (3,4) on the edge of a radius 5 zone")
	}
	if z.Contains(3, 4.1) {
		t.Errorf("expected (3,4.1) outside")
	}
}
