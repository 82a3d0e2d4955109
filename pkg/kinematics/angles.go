package kinematics

import (
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// DefaultCollinearTolerance is the triangle area below which three points
// are reported collinear.
const DefaultCollinearTolerance = 0.1

// DefaultFPS is the frame rate FrameStep is usually called with.
const DefaultFPS = 30

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * math.Pi / 180 }

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * 180 / math.Pi }

// NormalizeAngle maps theta into [0, 2π).
func NormalizeAngle(theta float64) float64 {
	t := math.Mod(theta, 2*math.Pi)
	if t < 0 {
		t += 2 * math.Pi
	}
	if t >= 2*math.Pi {
		t = 0
	}
	return t
}

// FrameStep is the crank advance per frame, in radians, when the crank
// turns at omega rad/s and frames are produced at fps.
func FrameStep(omega, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return omega / fps
}

// TriangleArea returns the unsigned area of the triangle p1 p2 p3.
func TriangleArea(p1, p2, p3 v2.Vec) float64 {
	return 0.5 * math.Abs(cross(p2.Sub(p1), p3.Sub(p1)))
}

// Collinear reports whether p1, p2 and p3 span a triangle of area below tol.
func Collinear(p1, p2, p3 v2.Vec, tol float64) bool {
	return TriangleArea(p1, p2, p3) < tol
}

func cross(a, b v2.Vec) float64 {
	return a.X*b.Y - a.Y*b.X
}
