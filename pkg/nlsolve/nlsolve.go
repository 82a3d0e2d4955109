// Package nlsolve finds roots of small square nonlinear systems.
//
// Solve runs a damped Levenberg–Marquardt iteration with a central
// difference Jacobian. Like MINPACK's hybrd it never fails outright: it
// returns the best iterate it reached and reports whether the residual
// fell below tolerance, leaving the decision to the caller.
package nlsolve

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Func evaluates the residual vector of x into dst. It must not modify x.
// len(dst) == len(x).
type Func func(dst, x []float64)

// Settings tunes the iteration. A nil *Settings uses DefaultSettings.
type Settings struct {
	MaxIter int     // outer iterations
	Tol     float64 // converged once ‖r‖₂ <= Tol
	StepTol float64 // stop when the step is this small relative to ‖x‖
	Lambda  float64 // initial damping
	Step    float64 // finite-difference step, 0 lets fd choose
}

// DefaultSettings returns settings suited to distance constraints on
// lengths of order 1–10.
func DefaultSettings() *Settings {
	return &Settings{
		MaxIter: 200,
		Tol:     1e-10,
		StepTol: 1e-15,
		Lambda:  1e-3,
	}
}

const (
	minLambda = 1e-12
	maxLambda = 1e16
	// minDiag keeps the damped diagonal positive when a Jacobian column
	// vanishes (e.g. the iterate sits on a circle centre).
	minDiag = 1e-12
)

// Result is the outcome of Solve.
type Result struct {
	X          []float64
	Residual   []float64
	Norm       float64 // ‖Residual‖₂
	Iterations int
	Converged  bool
}

// Solve searches for x with f(x) = 0 starting from x0. x0 is not modified.
func Solve(f Func, x0 []float64, s *Settings) Result {
	if s == nil {
		s = DefaultSettings()
	}
	n := len(x0)
	x := make([]float64, n)
	copy(x, x0)

	r := make([]float64, n)
	f(r, x)
	norm := floats.Norm(r, 2)

	jac := mat.NewDense(n, n, nil)
	jacSettings := &fd.JacobianSettings{Formula: fd.Central, Step: s.Step}

	xn := make([]float64, n)
	rn := make([]float64, n)
	lambda := s.Lambda

	iter := 0
	for ; iter < s.MaxIter; iter++ {
		if norm <= s.Tol || math.IsNaN(norm) {
			break
		}

		fd.Jacobian(jac, f, x, jacSettings)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(n, append([]float64(nil), r...)))

		accepted := false
		var stepNorm float64
		for lambda <= maxLambda {
			a := mat.DenseCopyOf(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				a.Set(i, i, d+lambda*math.Max(d, minDiag))
			}

			var delta mat.VecDense
			if err := delta.SolveVec(a, &grad); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					lambda *= 10
					continue
				}
				// Ill-conditioned but solved; the trial step below
				// decides whether it helps.
			}

			var ss float64
			for i := 0; i < n; i++ {
				di := delta.AtVec(i)
				xn[i] = x[i] - di
				ss += di * di
			}
			f(rn, xn)
			nn := floats.Norm(rn, 2)
			if nn < norm {
				stepNorm = math.Sqrt(ss)
				copy(x, xn)
				copy(r, rn)
				norm = nn
				lambda = math.Max(lambda/10, minLambda)
				accepted = true
				break
			}
			lambda *= 10
		}

		if !accepted {
			// Local minimum of ‖r‖: no damping produces descent.
			break
		}
		if stepNorm <= s.StepTol*(1+floats.Norm(x, 2)) {
			iter++
			break
		}
	}

	return Result{
		X:          x,
		Residual:   r,
		Norm:       norm,
		Iterations: iter,
		Converged:  norm <= s.Tol,
	}
}
