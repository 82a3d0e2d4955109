package kinematics

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/chazu/jansen/pkg/linkage"
)

// Sentinel errors. Use errors.Is to test for them; the concrete values
// returned are *GeometryError and *DegenerateError.
var (
	ErrInfeasible              = errors.New("loop cannot close")
	ErrNonConvergence          = errors.New("joint solve did not converge")
	ErrDegenerateConfiguration = errors.New("degenerate configuration")
	ErrSingular                = errors.New("singular velocity system")
)

// FailureKind distinguishes why a joint could not be placed.
type FailureKind int

const (
	// Infeasible means the two known centres of the loop are out of reach
	// of each other for the current crank angle: no placement exists.
	Infeasible FailureKind = iota
	// NonConvergence means a placement should exist but the root finder
	// stopped with a residual above ResidualTolerance.
	NonConvergence
)

func (k FailureKind) String() string {
	switch k {
	case Infeasible:
		return "infeasible"
	case NonConvergence:
		return "non-convergence"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// GeometryError reports a joint that could not be placed at a crank angle.
// The Positions returned alongside it still hold the best-effort point.
type GeometryError struct {
	Joint    linkage.Joint
	Loop     string  // e.g. "O-A-B-C"
	Kind     FailureKind
	Angle    float64 // crank angle, rad
	Residual float64 // largest loop residual at the returned point
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("joint %s (loop %s) at %.2f°: %s, residual %.3g",
		e.Joint, e.Loop, e.Angle*180/math.Pi, e.Kind, e.Residual)
}

// Is matches ErrInfeasible or ErrNonConvergence according to Kind.
func (e *GeometryError) Is(target error) bool {
	switch e.Kind {
	case Infeasible:
		return target == ErrInfeasible
	case NonConvergence:
		return target == ErrNonConvergence
	}
	return false
}

// DegenerateError is returned by the velocity solver in place of a
// velocity. Stage names the step that failed.
type DegenerateError struct {
	Stage string
	Cause error
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("degenerate configuration in %s: %v", e.Stage, e.Cause)
}

// Is reports true for ErrDegenerateConfiguration.
func (e *DegenerateError) Is(target error) bool {
	return target == ErrDegenerateConfiguration
}

// Unwrap returns the underlying cause.
func (e *DegenerateError) Unwrap() error {
	return e.Cause
}

func degenerate(stage string, cause error) *DegenerateError {
	return &DegenerateError{Stage: stage, Cause: cause}
}
