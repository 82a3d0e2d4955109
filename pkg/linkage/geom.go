package linkage

import (
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// CrankPoint returns the crank pin A for crank angle theta. The angle is
// measured from +Y towards +X: A = O + OA·(sin θ, cos θ).
func CrankPoint(g Geometry, theta float64) v2.Vec {
	return g.Frame.O.Add(v2.Vec{X: math.Sin(theta), Y: math.Cos(theta)}.MulScalar(g.Lengths.OA))
}

// CirclesIntersect reports whether two circles of radius r1 and r2 whose
// centres are d apart have at least one common point.
func CirclesIntersect(d, r1, r2 float64) bool {
	return d <= r1+r2 && d >= math.Abs(r1-r2)
}

// TriangleFeasible reports whether a, b, c can be the sides of a triangle
// (degenerate flat triangles included).
func TriangleFeasible(a, b, c float64) bool {
	return a+b >= c && a+c >= b && b+c >= a
}

// CircleIntersections returns the two intersection points of the circle of
// radius r1 about p1 and the circle of radius r2 about p2. The first point
// lies to the left of p1→p2, the second to the right. ok is false when the
// circles do not meet or share a centre.
func CircleIntersections(p1 v2.Vec, r1 float64, p2 v2.Vec, r2 float64) (left, right v2.Vec, ok bool) {
	d := p2.Sub(p1).Length()
	if d == 0 || !CirclesIntersect(d, r1, r2) {
		return v2.Vec{}, v2.Vec{}, false
	}
	a := (r1*r1 - r2*r2 + d*d) / (2 * d)
	h := math.Sqrt(math.Max(r1*r1-a*a, 0))
	u := p2.Sub(p1).MulScalar(1 / d)
	n := v2.Vec{X: -u.Y, Y: u.X}
	base := p1.Add(u.MulScalar(a))
	return base.Add(n.MulScalar(h)), base.Sub(n.MulScalar(h)), true
}

// heronArea returns the area of the triangle with sides a, b, c.
func heronArea(a, b, c float64) float64 {
	s := (a + b + c) / 2
	return math.Sqrt(math.Max(s*(s-a)*(s-b)*(s-c), 0))
}

func finite(p v2.Vec) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
