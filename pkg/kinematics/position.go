package kinematics

import (
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"github.com/chazu/jansen/pkg/linkage"
	"github.com/chazu/jansen/pkg/nlsolve"
)

const (
	// ResidualTolerance is the largest loop residual (length units) at
	// which a joint counts as placed.
	ResidualTolerance = 1e-6

	// RetryTolerance triggers the single alternate-seed retry: a first
	// attempt whose residual exceeds it is assumed to have landed on the
	// wrong side of the two-circle ambiguity or stalled.
	RetryTolerance = 0.1

	// feasibilitySlack absorbs rounding when a loop is exactly tangent.
	feasibilitySlack = 1e-9
)

// Branch seeds used when there is no previous solution. Each two-circle
// intersection has two solutions; these offsets pick the assembly the leg
// is built in. They are modelling choices, not derived quantities.
var (
	// B starts from A along (-0.7, 0.3)·AB.
	seedDirB = v2.Vec{X: -0.7, Y: 0.3}
	// E starts from F, then from the alternate offset on retry.
	seedOffsetE    = v2.Vec{X: -2, Y: 4}
	altSeedOffsetE = v2.Vec{X: 1, Y: 5}
	// G starts from E.
	seedOffsetG = v2.Vec{X: 6, Y: 3}
)

// circleLoop is one closed vector loop reduced to two distance
// constraints on a single unknown joint: |P - p1| = r1 and |P - p2| = r2.
type circleLoop struct {
	name  string
	joint linkage.Joint
	p1    v2.Vec
	r1    float64
	p2    v2.Vec
	r2    float64
}

func (l circleLoop) residuals(p v2.Vec) (float64, float64) {
	return p.Sub(l.p1).Length() - l.r1, p.Sub(l.p2).Length() - l.r2
}

func (l circleLoop) maxResidual(p v2.Vec) float64 {
	a, b := l.residuals(p)
	return math.Max(math.Abs(a), math.Abs(b))
}

func (l circleLoop) feasible() bool {
	d := l.p2.Sub(l.p1).Length()
	slack := feasibilitySlack * (l.r1 + l.r2)
	return d <= l.r1+l.r2+slack && d >= math.Abs(l.r1-l.r2)-slack
}

// reflect mirrors p across the line through the two centres, giving a seed
// in the basin of the other intersection.
func (l circleLoop) reflect(p v2.Vec) v2.Vec {
	axis := l.p2.Sub(l.p1)
	n := axis.Length()
	if n == 0 {
		return p
	}
	u := axis.MulScalar(1 / n)
	rel := p.Sub(l.p1)
	along := u.MulScalar(rel.Dot(u))
	return l.p1.Add(along.MulScalar(2).Sub(rel))
}

// solve runs the root finder from seed and returns the point it settled on
// together with its largest residual.
func (l circleLoop) solve(seed v2.Vec) (v2.Vec, float64) {
	f := func(dst, x []float64) {
		dst[0], dst[1] = l.residuals(v2.Vec{X: x[0], Y: x[1]})
	}
	res := nlsolve.Solve(f, []float64{seed.X, seed.Y}, nil)
	p := v2.Vec{X: res.X[0], Y: res.X[1]}
	return p, l.maxResidual(p)
}

// place solves the loop from the primary seed, retrying once from the
// alternate seed when the first attempt misses by more than
// RetryTolerance. The better of the two attempts is returned.
func (l circleLoop) place(theta float64, seed, alt v2.Vec) (v2.Vec, *GeometryError) {
	p, r := l.solve(seed)
	if r > RetryTolerance {
		if q, rq := l.solve(alt); rq < r {
			p, r = q, rq
		}
	}

	switch {
	case !l.feasible():
		return p, &GeometryError{Joint: l.joint, Loop: l.name, Kind: Infeasible, Angle: theta, Residual: r}
	case r > ResidualTolerance || !finite(p):
		return p, &GeometryError{Joint: l.joint, Loop: l.name, Kind: NonConvergence, Angle: theta, Residual: r}
	}
	return p, nil
}

// SolvePositions places every joint of g for crank angle theta. prev seeds
// the root finder; pass the Continuity returned by the previous call to stay
// on the same assembly branch during a sweep, or the zero value for an
// independent query.
//
// The returned Continuity is prev with every successfully placed joint
// replaced. When a joint cannot be placed the error is a *GeometryError
// for the first failing joint; the Positions are still fully populated with
// the best-effort points so callers can inspect them.
func SolvePositions(g linkage.Geometry, theta float64, prev linkage.Continuity) (linkage.Positions, linkage.Continuity, error) {
	l := g.Lengths
	fr := g.Frame
	next := prev
	var firstErr *GeometryError
	record := func(err *GeometryError) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p := linkage.Positions{O: fr.O, C: fr.C, D: fr.D}

	// Crank pin, closed form.
	p.A = linkage.CrankPoint(g, theta)

	// Loop O-A-B-C.
	abc := circleLoop{name: "O-A-B-C", joint: linkage.JointB, p1: p.A, r1: l.AB, p2: fr.C, r2: l.BC}
	seedB := p.A.Add(seedDirB.MulScalar(l.AB))
	if prev.HasB {
		seedB = prev.B
	}
	b, errB := abc.place(theta, seedB, abc.reflect(seedB))
	p.B = b
	if errB == nil {
		next.B, next.HasB = b, true
	}
	record(errB)

	// F extends A->B to the full bar length; A, B, F stay collinear.
	p.F = barEnd(p.A, p.B, l.AF())

	// Loop D-E-F.
	def := circleLoop{name: "D-E-F", joint: linkage.JointE, p1: fr.D, r1: l.DE, p2: p.F, r2: l.EF}
	seedE := p.F.Add(seedOffsetE)
	if prev.HasE {
		seedE = prev.E
	}
	e, errE := def.place(theta, seedE, p.F.Add(altSeedOffsetE))
	p.E = e
	if errE == nil {
		next.E, next.HasE = e, true
	}
	record(errE)

	// Loop E-F-G.
	efg := circleLoop{name: "E-F-G", joint: linkage.JointG, p1: p.F, r1: l.FG, p2: p.E, r2: l.EG}
	seedG := p.E.Add(seedOffsetG)
	if prev.HasG {
		seedG = prev.G
	}
	gp, errG := efg.place(theta, seedG, efg.reflect(seedG))
	p.G = gp
	if errG == nil {
		next.G, next.HasG = gp, true
	}
	record(errG)

	if firstErr != nil {
		return p, next, firstErr
	}
	return p, next, nil
}

// barEnd returns the point at distance length from a along a->b. If a and b
// coincide the direction is undefined and b is returned.
func barEnd(a, b v2.Vec, length float64) v2.Vec {
	d := b.Sub(a)
	n := d.Length()
	if n == 0 {
		return b
	}
	return a.Add(d.MulScalar(length / n))
}

// LoopResidual is one distance-constraint residual of a solved pose.
type LoopResidual struct {
	Link  string  `json:"link"`
	Value float64 `json:"value"` // |P-Q| - L
}

// Residuals returns every distance-constraint residual of p against g,
// plus the A-F bar length. All are zero for an exact solution.
func Residuals(g linkage.Geometry, p linkage.Positions) []LoopResidual {
	l := g.Lengths
	dist := func(a, b v2.Vec) float64 { return a.Sub(b).Length() }
	return []LoopResidual{
		{"OA", dist(p.A, p.O) - l.OA},
		{"AB", dist(p.B, p.A) - l.AB},
		{"BC", dist(p.C, p.B) - l.BC},
		{"AF", dist(p.F, p.A) - l.AF()},
		{"DE", dist(p.E, p.D) - l.DE},
		{"EF", dist(p.F, p.E) - l.EF},
		{"FG", dist(p.G, p.F) - l.FG},
		{"EG", dist(p.G, p.E) - l.EG},
	}
}

// MaxResidual returns the largest absolute residual of p against g.
func MaxResidual(g linkage.Geometry, p linkage.Positions) float64 {
	var m float64
	for _, r := range Residuals(g, p) {
		if a := math.Abs(r.Value); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}

func finite(p v2.Vec) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
