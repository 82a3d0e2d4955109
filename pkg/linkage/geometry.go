package linkage

import (
	"fmt"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// Joint names a point of the mechanism.
type Joint string

const (
	JointO Joint = "O" // crank pivot (fixed)
	JointA Joint = "A" // crank pin
	JointB Joint = "B"
	JointC Joint = "C" // rocker pivot (fixed)
	JointD Joint = "D" // upper pivot (fixed)
	JointE Joint = "E"
	JointF Joint = "F" // end of the rigid A-B-F bar
	JointG Joint = "G" // foot
)

// Joints lists every joint in reporting order.
var Joints = []Joint{JointO, JointA, JointB, JointC, JointD, JointE, JointF, JointG}

// Frame holds the fixed ground points.
type Frame struct {
	O v2.Vec `json:"o"`
	C v2.Vec `json:"c"`
	D v2.Vec `json:"d"`
}

// Lengths holds the eight rigid link lengths.
type Lengths struct {
	OA float64 `json:"oa"` // crank
	AB float64 `json:"ab"`
	BF float64 `json:"bf"` // extension of AB past B; A, B, F are collinear
	BC float64 `json:"bc"`
	DE float64 `json:"de"`
	EF float64 `json:"ef"`
	FG float64 `json:"fg"`
	EG float64 `json:"eg"`
}

// AF returns the full length of the rigid A-B-F bar.
func (l Lengths) AF() float64 {
	return l.AB + l.BF
}

// Named returns the lengths keyed by link name, in a stable order.
func (l Lengths) Named() []NamedLength {
	return []NamedLength{
		{"OA", l.OA}, {"AB", l.AB}, {"BF", l.BF}, {"BC", l.BC},
		{"DE", l.DE}, {"EF", l.EF}, {"FG", l.FG}, {"EG", l.EG},
	}
}

// NamedLength pairs a link name with its length.
type NamedLength struct {
	Name  string
	Value float64
}

// Geometry is one physical configuration of the linkage. It is a value:
// nothing in this module mutates a Geometry after construction.
type Geometry struct {
	Name    string  `json:"name"`
	Frame   Frame   `json:"frame"`
	Lengths Lengths `json:"lengths"`
}

// DefaultGeometry returns the reference modified Jansen leg (lengths in cm).
func DefaultGeometry() Geometry {
	return Geometry{
		Name: "jansen-modified",
		Frame: Frame{
			O: v2.Vec{X: 0, Y: 0},
			C: v2.Vec{X: -4.3, Y: -1.2},
			D: v2.Vec{X: -2.0, Y: 1.3},
		},
		Lengths: Lengths{
			OA: 1.0,
			AB: 3.0,
			BF: 4.34, // A-B-F is 7.34 overall
			BC: 2.28,
			DE: 3.8,
			EF: 3.7,
			FG: 5.65,
			EG: 9.1,
		},
	}
}

func (g Geometry) String() string {
	return fmt.Sprintf("%s (OA=%g AB=%g BF=%g BC=%g DE=%g EF=%g FG=%g EG=%g)",
		g.Name, g.Lengths.OA, g.Lengths.AB, g.Lengths.BF, g.Lengths.BC,
		g.Lengths.DE, g.Lengths.EF, g.Lengths.FG, g.Lengths.EG)
}

// Positions is the solved location of every joint for one crank angle.
type Positions struct {
	O v2.Vec `json:"O"`
	A v2.Vec `json:"A"`
	B v2.Vec `json:"B"`
	C v2.Vec `json:"C"`
	D v2.Vec `json:"D"`
	E v2.Vec `json:"E"`
	F v2.Vec `json:"F"`
	G v2.Vec `json:"G"`
}

// Get returns the position of joint j.
func (p Positions) Get(j Joint) (v2.Vec, bool) {
	switch j {
	case JointO:
		return p.O, true
	case JointA:
		return p.A, true
	case JointB:
		return p.B, true
	case JointC:
		return p.C, true
	case JointD:
		return p.D, true
	case JointE:
		return p.E, true
	case JointF:
		return p.F, true
	case JointG:
		return p.G, true
	}
	return v2.Vec{}, false
}

// Map returns the positions keyed by joint name.
func (p Positions) Map() map[Joint]v2.Vec {
	m := make(map[Joint]v2.Vec, len(Joints))
	for _, j := range Joints {
		m[j], _ = p.Get(j)
	}
	return m
}

// Continuity carries the last converged B, E and G between solves. It is
// only ever used as the initial guess of the next solve. The zero value
// means "no previous solution" and selects the built-in branch seeds.
type Continuity struct {
	B, E, G v2.Vec
	HasB    bool
	HasE    bool
	HasG    bool
}

// Valid reports whether every joint has a seed.
func (c Continuity) Valid() bool {
	return c.HasB && c.HasE && c.HasG
}

// ContinuityFrom seeds every joint from a solved pose.
func ContinuityFrom(p Positions) Continuity {
	return Continuity{B: p.B, E: p.E, G: p.G, HasB: true, HasE: true, HasG: true}
}

// SweepSpec describes a crank sweep: Steps evenly spaced angles in
// [From, To), evaluated at crank rate Omega.
type SweepSpec struct {
	Steps         int     `json:"steps"`
	Omega         float64 `json:"omega"`          // rad/s
	ContactHeight float64 `json:"contact_height"` // |G.y| below this counts as ground contact
	From          float64 `json:"from"`           // rad
	To            float64 `json:"to"`             // rad
}

// Default sweep values.
const (
	DefaultSteps         = 360
	DefaultOmega         = 0.1
	DefaultContactHeight = 0.5

	// MinOmega and MaxOmega bound the crank rates the mechanism is
	// expected to be studied at.
	MinOmega = 0.01
	MaxOmega = 5.0
)

// DefaultSweep returns one full revolution at 1 degree resolution.
func DefaultSweep() SweepSpec {
	return SweepSpec{
		Steps:         DefaultSteps,
		Omega:         DefaultOmega,
		ContactHeight: DefaultContactHeight,
		From:          0,
		To:            2 * math.Pi,
	}
}

// Angle returns the crank angle of step i.
func (s SweepSpec) Angle(i int) float64 {
	if s.Steps <= 0 {
		return s.From
	}
	return s.From + (s.To-s.From)*float64(i)/float64(s.Steps)
}

// Step returns the angular spacing between consecutive samples.
func (s SweepSpec) Step() float64 {
	if s.Steps <= 0 {
		return 0
	}
	return (s.To - s.From) / float64(s.Steps)
}

// Study bundles a mechanism with the sweep it should be examined over.
// It is what a mechanism source file evaluates to.
type Study struct {
	Geometry *Geometry `json:"geometry"`
	Sweep    SweepSpec `json:"sweep"`
}
