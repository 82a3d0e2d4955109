package kinematics

import (
	"github.com/chazu/jansen/pkg/linkage"
)

// Solver is a solving session for one mechanism. It threads the continuity
// state from call to call so that a caller stepping the crank gets a
// continuous trajectory.
//
// A Solver must not be used from more than one goroutine at a time.
type Solver struct {
	geom linkage.Geometry
	cont linkage.Continuity
}

// NewSolver creates a session with no previous solution.
func NewSolver(g linkage.Geometry) *Solver {
	return &Solver{geom: g}
}

// Geometry returns the mechanism being solved.
func (s *Solver) Geometry() linkage.Geometry {
	return s.geom
}

// Continuity returns the current seed state.
func (s *Solver) Continuity() linkage.Continuity {
	return s.cont
}

// Seed replaces the continuity state, e.g. with one taken from another
// session at a nearby angle.
func (s *Solver) Seed(c linkage.Continuity) {
	s.cont = c
}

// Reset forgets the previous solution; the next solve uses the built-in
// branch seeds.
func (s *Solver) Reset() {
	s.cont = linkage.Continuity{}
}

// Positions solves every joint at crank angle theta. See SolvePositions.
func (s *Solver) Positions(theta float64) (linkage.Positions, error) {
	p, next, err := SolvePositions(s.geom, theta, s.cont)
	s.cont = next
	return p, err
}

// AnalyzeVelocity solves positions and all loop velocities at theta.
// See AnalyzeVelocity.
func (s *Solver) AnalyzeVelocity(theta, omega float64) (VelocityAnalysis, error) {
	a, next, err := AnalyzeVelocity(s.geom, theta, omega, s.cont)
	s.cont = next
	return a, err
}

// Velocity returns the foot velocity at theta for crank rate omega. On
// failure the velocity is zero and the error matches
// ErrDegenerateConfiguration.
func (s *Solver) Velocity(theta, omega float64) (FootVelocity, error) {
	a, err := s.AnalyzeVelocity(theta, omega)
	if err != nil {
		return FootVelocity{}, err
	}
	return a.Foot(), nil
}
