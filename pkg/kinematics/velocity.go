package kinematics

import (
	"fmt"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/chazu/jansen/pkg/linkage"
)

// singularTol is the relative determinant below which a 2x2 loop system is
// treated as singular: |det| <= singularTol·|col1|·|col2|, i.e. the two
// links are within ~1e-9 rad of parallel.
const singularTol = 1e-9

// FootVelocity is the linear velocity of the foot G.
type FootVelocity struct {
	Speed  float64 `json:"speed"` // |Vector|, length units per second
	Vector v2.Vec  `json:"vector"`
	// Approximate is set when the E-F-G loop was singular and ω_FG was
	// taken as zero; Vector is then v_F.
	Approximate bool `json:"approximate,omitempty"`
}

// VelocityAnalysis holds every intermediate of the velocity-loop solve.
// Angular rates are in rad/s, counter-clockwise positive.
type VelocityAnalysis struct {
	Positions linkage.Positions

	OmegaAB, OmegaBC float64
	OmegaDE, OmegaEF float64
	OmegaFG, OmegaEG float64

	VA, VB, VE, VF, VG v2.Vec

	Approximate bool
}

// Foot returns the foot velocity of the analysis.
func (a VelocityAnalysis) Foot() FootVelocity {
	return FootVelocity{Speed: a.VG.Length(), Vector: a.VG, Approximate: a.Approximate}
}

// AnalyzeVelocity solves positions for theta (seeded by prev) and then the
// three differentiated vector loops for crank rate omega.
//
// It never panics. Any failure, including a position solve that did not
// close, yields a zero VelocityAnalysis and an error matching
// ErrDegenerateConfiguration.
func AnalyzeVelocity(g linkage.Geometry, theta, omega float64, prev linkage.Continuity) (a VelocityAnalysis, next linkage.Continuity, err error) {
	next = prev
	defer func() {
		if r := recover(); r != nil {
			a = VelocityAnalysis{}
			err = degenerate("velocity", fmt.Errorf("panic: %v", r))
		}
	}()

	p, next, perr := SolvePositions(g, theta, prev)
	if perr != nil {
		return VelocityAnalysis{}, next, degenerate("positions", perr)
	}
	a, err = analyzeAt(g, p, theta, omega)
	return a, next, err
}

// SolveVelocity is AnalyzeVelocity reduced to the foot.
func SolveVelocity(g linkage.Geometry, theta, omega float64, prev linkage.Continuity) (FootVelocity, linkage.Continuity, error) {
	a, next, err := AnalyzeVelocity(g, theta, omega, prev)
	if err != nil {
		return FootVelocity{}, next, err
	}
	return a.Foot(), next, nil
}

// VelocityAt runs the velocity loops on an already solved pose. The pose
// must belong to g at crank angle theta. It never panics.
func VelocityAt(g linkage.Geometry, p linkage.Positions, theta, omega float64) (a VelocityAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			a = VelocityAnalysis{}
			err = degenerate("velocity", fmt.Errorf("panic: %v", r))
		}
	}()
	if r := MaxResidual(g, p); !(r <= ResidualTolerance) {
		return VelocityAnalysis{}, degenerate("positions", errors.Errorf("pose residual %.3g exceeds tolerance", r))
	}
	return analyzeAt(g, p, theta, omega)
}

func analyzeAt(g linkage.Geometry, p linkage.Positions, theta, omega float64) (VelocityAnalysis, error) {
	l := g.Lengths
	a := VelocityAnalysis{Positions: p}

	// Crank pin: d/dt of O + OA·(sin θ, cos θ).
	a.VA = v2.Vec{X: math.Cos(theta), Y: -math.Sin(theta)}.MulScalar(omega * l.OA)

	thAB := linkAngle(p.A, p.B)
	thBC := linkAngle(p.B, p.C)

	// O-A-B-C: v_A + ω_AB×r_AB + ω_BC×r_BC = 0.
	wAB, wBC, err := solveLoop(l.AB, thAB, l.BC, thBC, a.VA.MulScalar(-1))
	if err != nil {
		return VelocityAnalysis{}, degenerate("loop O-A-B-C", err)
	}
	a.OmegaAB, a.OmegaBC = wAB, wBC
	a.VB = a.VA.Add(tangential(wAB, l.AB, thAB))
	a.VF = a.VA.Add(tangential(wAB, l.AF(), thAB))

	thDE := linkAngle(p.D, p.E)
	thEF := linkAngle(p.E, p.F)

	// D-E-F with v_D = 0: ω_DE×r_DE + ω_EF×r_EF = v_F.
	wDE, wEF, err := solveLoop(l.DE, thDE, l.EF, thEF, a.VF)
	if err != nil {
		return VelocityAnalysis{}, degenerate("loop D-E-F", err)
	}
	a.OmegaDE, a.OmegaEF = wDE, wEF
	a.VE = tangential(wDE, l.DE, thDE)

	thFG := linkAngle(p.F, p.G)
	thEG := linkAngle(p.E, p.G)

	// E-F-G closed: v_F + ω_FG×r_FG = v_E + ω_EG×r_EG.
	wFG, wEG, err := solveLoop(l.FG, thFG, -l.EG, thEG, a.VE.Sub(a.VF))
	if err != nil {
		// The foot triangle is flat; fall back to ω_FG = 0.
		wFG, wEG = 0, 0
		a.Approximate = true
	}
	a.OmegaFG, a.OmegaEG = wFG, wEG
	a.VG = a.VF.Add(tangential(wFG, l.FG, thFG))

	if !finite(a.VG) {
		return VelocityAnalysis{}, degenerate("foot", errors.New("non-finite foot velocity"))
	}
	return a, nil
}

// linkAngle is the orientation of the link from p to q.
func linkAngle(p, q v2.Vec) float64 {
	d := q.Sub(p)
	return math.Atan2(d.Y, d.X)
}

// tangential is ω×r for a link of length L at angle th: ω·L·(-sin th, cos th).
func tangential(omega, length, th float64) v2.Vec {
	return v2.Vec{X: -math.Sin(th), Y: math.Cos(th)}.MulScalar(omega * length)
}

// solveLoop solves ω1·L1·perp(th1) + ω2·L2·perp(th2) = rhs for (ω1, ω2).
// A negative length flips the sign of that column.
func solveLoop(l1, th1, l2, th2 float64, rhs v2.Vec) (float64, float64, error) {
	return solve2(
		-l1*math.Sin(th1), -l2*math.Sin(th2),
		l1*math.Cos(th1), l2*math.Cos(th2),
		rhs.X, rhs.Y,
	)
}

// solve2 solves the 2x2 system [a11 a12; a21 a22]·x = (b1, b2).
func solve2(a11, a12, a21, a22, b1, b2 float64) (float64, float64, error) {
	m := mat.NewDense(2, 2, []float64{a11, a12, a21, a22})
	c1 := math.Hypot(a11, a21)
	c2 := math.Hypot(a12, a22)
	det := mat.Det(m)
	if math.IsNaN(det) || math.Abs(det) <= singularTol*c1*c2 {
		return 0, 0, errors.Wrapf(ErrSingular, "det %.3g", det)
	}

	var x mat.VecDense
	if err := x.SolveVec(m, mat.NewVecDense(2, []float64{b1, b2})); err != nil {
		return 0, 0, errors.Wrap(ErrSingular, err.Error())
	}
	return x.AtVec(0), x.AtVec(1), nil
}
