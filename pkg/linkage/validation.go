package linkage

import (
	"fmt"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// ValidationSeverity indicates whether a validation finding blocks solving
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks solving
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Subject  string             // link, joint or loop at fault (empty if mechanism-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Subject, e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	Subject string
	Message string
}

// ValidationResult bundles errors (blocking) and warnings (advisory)
// from all validation tiers.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether there are no blocking errors.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// feasibilitySamples is the number of crank angles (one per degree) probed
// when checking that the O-A-B-C loop closes over a full revolution.
const feasibilitySamples = 360

// degenerateAreaRatio flags an E-F-G triangle whose area is tiny relative to
// the equilateral triangle of the same perimeter.
const degenerateAreaRatio = 1e-3

// Validate runs the Tier 1 structural checks on a geometry and returns a
// slice of errors. An empty slice means the geometry is well formed.
func Validate(g Geometry) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateLengths(g.Lengths)...)
	errs = append(errs, validateFrame(g.Frame)...)
	return errs
}

// ValidateAll runs all validation tiers (structural, geometric, study
// settings) and returns a ValidationResult with separated errors and
// warnings.
func ValidateAll(g Geometry, s SweepSpec) ValidationResult {
	var result ValidationResult

	// Tier 1: structural. Geometric checks are meaningless on top of
	// non-positive lengths, so stop here if any fail.
	result.Errors = append(result.Errors, Validate(g)...)
	if len(result.Errors) > 0 {
		return result
	}

	// Tier 2: geometric.
	geoErrs, geoWarnings := validateGeometry(g)
	result.Errors = append(result.Errors, geoErrs...)
	result.Warnings = append(result.Warnings, geoWarnings...)

	// Tier 3: sweep settings.
	for _, e := range validateSweep(s) {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, ValidationWarning{Subject: e.Subject, Message: e.Message})
		} else {
			result.Errors = append(result.Errors, e)
		}
	}

	return result
}

// validateLengths checks that every link length is positive and finite.
func validateLengths(l Lengths) []ValidationError {
	var errs []ValidationError
	for _, nl := range l.Named() {
		if math.IsNaN(nl.Value) || math.IsInf(nl.Value, 0) {
			errs = append(errs, ValidationError{
				Subject:  nl.Name,
				Message:  "link length is not a finite number",
				Severity: SeverityError,
			})
			continue
		}
		if nl.Value <= 0 {
			errs = append(errs, ValidationError{
				Subject:  nl.Name,
				Message:  fmt.Sprintf("link length is %.4f, must be positive", nl.Value),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateFrame checks that the fixed points are finite and distinct.
func validateFrame(f Frame) []ValidationError {
	var errs []ValidationError
	points := []struct {
		name string
		p    v2.Vec
	}{{"O", f.O}, {"C", f.C}, {"D", f.D}}

	for _, pt := range points {
		if !finite(pt.p) {
			errs = append(errs, ValidationError{
				Subject:  pt.name,
				Message:  "frame point has a non-finite coordinate",
				Severity: SeverityError,
			})
		}
	}
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if points[i].p.Sub(points[j].p).Length() == 0 {
				errs = append(errs, ValidationError{
					Subject:  points[i].name + points[j].name,
					Message:  "frame points coincide",
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// ---------------------------------------------------------------------------
// Tier 2: Geometric validation (errors + warnings)
// ---------------------------------------------------------------------------

func validateGeometry(g Geometry) ([]ValidationError, []ValidationWarning) {
	var errs []ValidationError
	var warnings []ValidationWarning

	triErrs, triWarnings := validateFootTriangle(g.Lengths)
	errs = append(errs, triErrs...)
	warnings = append(warnings, triWarnings...)

	warnings = append(warnings, validateCrankLoop(g)...)

	return errs, warnings
}

// validateFootTriangle checks the rigid E-F-G triangle. Its three sides are
// all fixed, so the triangle inequality can be checked once for all angles.
func validateFootTriangle(l Lengths) ([]ValidationError, []ValidationWarning) {
	if !TriangleFeasible(l.EF, l.FG, l.EG) {
		return []ValidationError{{
			Subject: "E-F-G",
			Message: fmt.Sprintf(
				"sides EF=%.3f FG=%.3f EG=%.3f violate the triangle inequality",
				l.EF, l.FG, l.EG,
			),
			Severity: SeverityError,
		}}, nil
	}

	area := heronArea(l.EF, l.FG, l.EG)
	p := l.EF + l.FG + l.EG
	equilateral := math.Sqrt(3) / 4 * (p / 3) * (p / 3)
	if area < degenerateAreaRatio*equilateral {
		return nil, []ValidationWarning{{
			Subject: "E-F-G",
			Message: fmt.Sprintf("triangle is nearly flat (area %.4g); velocity analysis may be singular", area),
		}}
	}
	return nil, nil
}

// validateCrankLoop probes a full crank revolution and reports every arc of
// crank angles over which B cannot be placed. A leg with such an arc cannot
// be driven through a full revolution; samples inside it will not solve.
func validateCrankLoop(g Geometry) []ValidationWarning {
	var warnings []ValidationWarning
	lo := math.Abs(g.Lengths.AB - g.Lengths.BC)
	hi := g.Lengths.AB + g.Lengths.BC

	start := -1
	flush := func(end int) {
		warnings = append(warnings, ValidationWarning{
			Subject: "O-A-B-C",
			Message: fmt.Sprintf(
				"loop cannot close for crank angles %d°..%d°: |C-A| leaves [%.3f, %.3f]",
				start, end, lo, hi,
			),
		})
		start = -1
	}
	for i := 0; i < feasibilitySamples; i++ {
		theta := 2 * math.Pi * float64(i) / feasibilitySamples
		d := g.Frame.C.Sub(CrankPoint(g, theta)).Length()
		closes := CirclesIntersect(d, g.Lengths.AB, g.Lengths.BC)
		if !closes && start < 0 {
			start = i
		}
		if closes && start >= 0 {
			flush(i - 1)
		}
	}
	if start >= 0 {
		flush(feasibilitySamples - 1)
	}
	return warnings
}

// ---------------------------------------------------------------------------
// Tier 3: Sweep settings
// ---------------------------------------------------------------------------

// minSteadySteps is the coarsest sweep that reliably keeps continuity
// seeding on one branch for the reference mechanism.
const minSteadySteps = 36

func validateSweep(s SweepSpec) []ValidationError {
	var errs []ValidationError
	if s.Steps <= 0 {
		errs = append(errs, ValidationError{
			Subject:  "sweep",
			Message:  fmt.Sprintf("steps is %d, must be positive", s.Steps),
			Severity: SeverityError,
		})
	} else if s.Steps < minSteadySteps {
		errs = append(errs, ValidationError{
			Subject:  "sweep",
			Message:  fmt.Sprintf("%d steps is coarse; the solver may jump between assembly branches", s.Steps),
			Severity: SeverityWarning,
		})
	}
	if s.To == s.From {
		errs = append(errs, ValidationError{
			Subject:  "sweep",
			Message:  "empty angle range",
			Severity: SeverityError,
		})
	}
	if s.Omega < MinOmega || s.Omega > MaxOmega {
		errs = append(errs, ValidationError{
			Subject:  "sweep",
			Message:  fmt.Sprintf("omega %.3f rad/s is outside the studied range [%.2f, %.2f]", s.Omega, MinOmega, MaxOmega),
			Severity: SeverityWarning,
		})
	}
	if s.ContactHeight < 0 {
		errs = append(errs, ValidationError{
			Subject:  "sweep",
			Message:  fmt.Sprintf("contact height %.3f is negative", s.ContactHeight),
			Severity: SeverityError,
		})
	}
	return errs
}
