package linkage

import (
	"math"
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

const eps = 1e-9

func near(a, b v2.Vec, tol float64) bool {
	return a.Sub(b).Length() <= tol
}

// ---------------------------------------------------------------------------
// CrankPoint
// ---------------------------------------------------------------------------

func TestCrankPointAngleConvention(t *testing.T) {
	g := DefaultGeometry()
	tests := []struct {
		deg  float64
		want v2.Vec
	}{
		{0, v2.Vec{X: 0, Y: 1}},
		{90, v2.Vec{X: 1, Y: 0}},
		{180, v2.Vec{X: 0, Y: -1}},
		{270, v2.Vec{X: -1, Y: 0}},
	}
	for _, tt := range tests {
		got := CrankPoint(g, tt.deg*math.Pi/180)
		if !near(got, tt.want, eps) {
			t.Errorf("at %v°: expected %v, got %v", tt.deg, tt.want, got)
		}
	}
}

func TestCrankPointFollowsPivot(t *testing.T) {
	g := DefaultGeometry()
	g.Frame.O = v2.Vec{X: 2, Y: -3}
	g.Lengths.OA = 2.5
	for i := 0; i < 12; i++ {
		theta := float64(i) * math.Pi / 6
		r := CrankPoint(g, theta).Sub(g.Frame.O).Length()
		if math.Abs(r-2.5) > eps {
			t.Fatalf("expected crank radius 2.5, got %v", r)
		}
	}
}

// ---------------------------------------------------------------------------
// Circles and triangles
// ---------------------------------------------------------------------------

func TestCirclesIntersect(t *testing.T) {
	tests := []struct {
		name      string
		d, r1, r2 float64
		want      bool
	}{
		{"crossing", 3, 2, 2, true},
		{"external tangent", 4, 2, 2, true},
		{"too far", 4.1, 2, 2, false},
		{"internal tangent", 1, 3, 2, true},
		{"nested", 0.5, 3, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CirclesIntersect(tt.d, tt.r1, tt.r2); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTriangleFeasible(t *testing.T) {
	if !TriangleFeasible(3.7, 5.65, 9.1) {
		t.Error("expected reference foot triangle to be feasible")
	}
	if !TriangleFeasible(1, 2, 3) {
		t.Error("expected flat triangle to count as feasible")
	}
	if TriangleFeasible(1, 2, 3.5) {
		t.Error("expected 1, 2, 3.5 to be infeasible")
	}
}

func TestCircleIntersections(t *testing.T) {
	p1 := v2.Vec{X: 0, Y: 0}
	p2 := v2.Vec{X: 4, Y: 0}
	left, right, ok := CircleIntersections(p1, 2.5, p2, 2.5)
	if !ok {
		t.Fatal("expected intersection")
	}
	if !near(left, v2.Vec{X: 2, Y: 1.5}, eps) {
		t.Errorf("expected left (2, 1.5), got %v", left)
	}
	if !near(right, v2.Vec{X: 2, Y: -1.5}, eps) {
		t.Errorf("expected right (2, -1.5), got %v", right)
	}

	if _, _, ok := CircleIntersections(p1, 1, p2, 1); ok {
		t.Error("expected no intersection for distant circles")
	}
	if _, _, ok := CircleIntersections(p1, 1, p1, 1); ok {
		t.Error("expected no intersection for concentric circles")
	}
}

func TestHeronArea(t *testing.T) {
	if a := heronArea(3, 4, 5); math.Abs(a-6) > eps {
		t.Errorf("expected 6, got %v", a)
	}
	if a := heronArea(1, 2, 3); a != 0 {
		t.Errorf("expected 0 for flat triangle, got %v", a)
	}
}

// ---------------------------------------------------------------------------
// Positions and sweep spec
// ---------------------------------------------------------------------------

func TestPositionsMap(t *testing.T) {
	p := Positions{A: v2.Vec{X: 1, Y: 2}, G: v2.Vec{X: -3, Y: 4}}
	m := p.Map()
	if len(m) != 8 {
		t.Fatalf("expected 8 joints, got %d", len(m))
	}
	if m[JointA] != p.A || m[JointG] != p.G {
		t.Errorf("map does not match fields: %v", m)
	}
	if _, ok := p.Get(Joint("Z")); ok {
		t.Error("expected unknown joint to report false")
	}
}

func TestSweepSpecAngles(t *testing.T) {
	s := DefaultSweep()
	if s.Angle(0) != 0 {
		t.Errorf("expected first angle 0, got %v", s.Angle(0))
	}
	if math.Abs(s.Angle(90)-math.Pi/2) > eps {
		t.Errorf("expected 90th angle π/2, got %v", s.Angle(90))
	}
	if math.Abs(s.Step()-math.Pi/180) > eps {
		t.Errorf("expected 1° step, got %v", s.Step())
	}
	if (SweepSpec{}).Step() != 0 {
		t.Error("expected zero step for empty spec")
	}
}

func TestContinuityFrom(t *testing.T) {
	var c Continuity
	if c.Valid() {
		t.Fatal("expected zero continuity to be invalid")
	}
	p := Positions{B: v2.Vec{X: 1}, E: v2.Vec{X: 2}, G: v2.Vec{X: 3}}
	c = ContinuityFrom(p)
	if !c.Valid() || c.B != p.B || c.E != p.E || c.G != p.G {
		t.Errorf("unexpected continuity %+v", c)
	}
}
