package kinematics

import (
	"math"
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/pkg/errors"

	"github.com/chazu/jansen/pkg/linkage"
)

func TestSolveVelocityReferencePoseAtZero(t *testing.T) {
	g := linkage.DefaultGeometry()
	foot, next, err := SolveVelocity(g, 0, 0.1, linkage.Continuity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := v2.Vec{X: 0.427756, Y: -0.222194}
	if !near(foot.Vector, want, 1e-5) {
		t.Errorf("expected foot velocity %v, got %v", want, foot.Vector)
	}
	if math.Abs(foot.Speed-want.Length()) > 1e-5 {
		t.Errorf("expected speed %v, got %v", want.Length(), foot.Speed)
	}
	if foot.Approximate {
		t.Error("expected exact solve")
	}
	if !next.Valid() {
		t.Error("expected continuity after a successful solve")
	}
}

func TestAnalyzeVelocityCrankPin(t *testing.T) {
	g := fullRotation()
	omega := 0.7
	for _, deg := range []float64{0, 90, 210} {
		theta := Rad(deg)
		a, _, err := AnalyzeVelocity(g, theta, omega, linkage.Continuity{})
		if err != nil {
			t.Fatalf("at %v°: unexpected error: %v", deg, err)
		}
		want := v2.Vec{X: math.Cos(theta), Y: -math.Sin(theta)}.MulScalar(omega * g.Lengths.OA)
		if !near(a.VA, want, 1e-12) {
			t.Errorf("at %v°: expected v_A %v, got %v", deg, want, a.VA)
		}
		// v_A is tangent to the crank circle.
		if d := a.VA.Dot(a.Positions.A.Sub(g.Frame.O)); math.Abs(d) > 1e-12 {
			t.Errorf("at %v°: v_A not tangent, dot %v", deg, d)
		}
	}
}

// The analytic velocity must match the finite-difference derivative of the
// position solution.
func TestVelocityMatchesFiniteDifference(t *testing.T) {
	g := fullRotation()
	const (
		omega = 0.7
		h     = 1e-4
	)
	s := NewSolver(g)
	for deg := 0; deg < 360; deg += 15 {
		theta := Rad(float64(deg))
		a, err := s.AnalyzeVelocity(theta, omega)
		if err != nil {
			t.Fatalf("at %d°: unexpected error: %v", deg, err)
		}
		seed := s.Continuity()

		plus, _, err1 := SolvePositions(g, theta+h, seed)
		minus, _, err2 := SolvePositions(g, theta-h, seed)
		if err1 != nil || err2 != nil {
			t.Fatalf("at %d°: unexpected errors %v %v", deg, err1, err2)
		}
		fd := plus.G.Sub(minus.G).MulScalar(omega / (2 * h))
		if !near(a.VG, fd, 1e-3) {
			t.Errorf("at %d°: expected v_G ≈ %v, got %v", deg, fd, a.VG)
		}
		fdE := plus.E.Sub(minus.E).MulScalar(omega / (2 * h))
		if !near(a.VE, fdE, 1e-3) {
			t.Errorf("at %d°: expected v_E ≈ %v, got %v", deg, fdE, a.VE)
		}
	}
}

func TestVelocityScalesWithOmega(t *testing.T) {
	g := fullRotation()
	p, _, err := SolvePositions(g, Rad(40), linkage.Continuity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a1, err := VelocityAt(g, p, Rad(40), 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, err := VelocityAt(g, p, Rad(40), 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !near(a2.VG, a1.VG.MulScalar(2), 1e-9) {
		t.Errorf("expected doubled velocity, got %v and %v", a1.VG, a2.VG)
	}
	a0, err := VelocityAt(g, p, Rad(40), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a0.Foot().Speed != 0 {
		t.Errorf("expected zero speed at rest, got %v", a0.Foot().Speed)
	}
}

// Rigid links have no stretching velocity along their own direction.
func TestVelocityRespectsRigidLinks(t *testing.T) {
	g := fullRotation()
	a, _, err := AnalyzeVelocity(g, Rad(75), 1.3, linkage.Continuity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := a.Positions
	zero := v2.Vec{}
	links := []struct {
		name   string
		p, q   v2.Vec
		vp, vq v2.Vec
	}{
		{"AB", p.A, p.B, a.VA, a.VB},
		{"BC", p.B, p.C, a.VB, zero},
		{"DE", p.D, p.E, zero, a.VE},
		{"EF", p.E, p.F, a.VE, a.VF},
		{"FG", p.F, p.G, a.VF, a.VG},
		{"EG", p.E, p.G, a.VE, a.VG},
	}
	for _, l := range links {
		d := l.q.Sub(l.p)
		rate := l.vq.Sub(l.vp).Dot(d) / d.Length()
		if math.Abs(rate) > 1e-6 {
			t.Errorf("link %s stretches at %v", l.name, rate)
		}
	}
}

// ---------------------------------------------------------------------------
// Degenerate configurations
// ---------------------------------------------------------------------------

func TestSolveVelocityDegenerateFootTriangle(t *testing.T) {
	g := fullRotation()
	g.Lengths.EG = 20
	foot, _, err := SolveVelocity(g, 0, 0.1, linkage.Continuity{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrDegenerateConfiguration) {
		t.Fatalf("expected ErrDegenerateConfiguration, got %v", err)
	}
	if !errors.Is(err, ErrInfeasible) {
		t.Errorf("expected the position cause to be kept, got %v", err)
	}
	if foot != (FootVelocity{}) {
		t.Errorf("expected zero velocity, got %+v", foot)
	}
	var de *DegenerateError
	if !errors.As(err, &de) || de.Stage != "positions" {
		t.Errorf("expected positions stage, got %v", err)
	}
}

func TestSolveVelocityInfeasibleCrankAngle(t *testing.T) {
	s := NewSolver(linkage.DefaultGeometry())
	foot, err := s.Velocity(Rad(70), 0.1)
	if !errors.Is(err, ErrDegenerateConfiguration) {
		t.Fatalf("expected ErrDegenerateConfiguration, got %v", err)
	}
	if foot.Speed != 0 || foot.Vector != (v2.Vec{}) {
		t.Errorf("expected zero velocity, got %+v", foot)
	}
}

func TestVelocityFlatFootTriangleFallsBack(t *testing.T) {
	g := fullRotation()
	p, _, err := SolvePositions(g, Rad(20), linkage.Continuity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Put G on the E->F line beyond F so the foot triangle is flat.
	u := p.F.Sub(p.E).MulScalar(1 / p.F.Sub(p.E).Length())
	p.G = p.F.Add(u.MulScalar(g.Lengths.FG))
	g.Lengths.EG = p.G.Sub(p.E).Length()
	g.Lengths.EF = p.F.Sub(p.E).Length()

	a, err := VelocityAt(g, p, Rad(20), 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Approximate || !a.Foot().Approximate {
		t.Fatal("expected approximate result")
	}
	if a.OmegaFG != 0 {
		t.Errorf("expected ω_FG = 0, got %v", a.OmegaFG)
	}
	if a.VG != a.VF {
		t.Errorf("expected v_G = v_F, got %v and %v", a.VG, a.VF)
	}
}

func TestVelocityAtRejectsBrokenPose(t *testing.T) {
	g := fullRotation()
	p, _, err := SolvePositions(g, 0, linkage.Continuity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.B = p.B.Add(v2.Vec{X: 1})
	a, err := VelocityAt(g, p, 0, 0.1)
	if !errors.Is(err, ErrDegenerateConfiguration) {
		t.Fatalf("expected ErrDegenerateConfiguration, got %v", err)
	}
	if a.VG != (v2.Vec{}) {
		t.Errorf("expected zero analysis, got %+v", a)
	}
}

func TestVelocityNeverPanics(t *testing.T) {
	g := linkage.DefaultGeometry()
	g.Lengths.AB = math.NaN()
	for _, theta := range []float64{0, 1, math.Inf(1), math.NaN()} {
		_, _, err := SolveVelocity(g, theta, 0.1, linkage.Continuity{})
		if !errors.Is(err, ErrDegenerateConfiguration) {
			t.Errorf("at %v: expected ErrDegenerateConfiguration, got %v", theta, err)
		}
	}
}

func TestSolve2Singular(t *testing.T) {
	_, _, err := solve2(1, 2, 2, 4, 1, 1)
	if !errors.Is(err, ErrSingular) {
		t.Fatalf("expected ErrSingular, got %v", err)
	}
	x, y, err := solve2(2, 0, 0, 4, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x != 1 || y != 0.5 {
		t.Errorf("expected (1, 0.5), got (%v, %v)", x, y)
	}
}
