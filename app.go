package main

import (
	"log"
	"math"
	"runtime"
	"sync"

	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/pkg/errors"

	"github.com/chazu/jansen/pkg/engine"
	"github.com/chazu/jansen/pkg/kinematics"
	"github.com/chazu/jansen/pkg/linkage"
)

// colorPalette is a default palette used to assign distinct colors to links.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// linkSegments lists the drawn links of the leg, in drawing order.
var linkSegments = []struct {
	name     string
	from, to linkage.Joint
}{
	{"OA", linkage.JointO, linkage.JointA},
	{"ABF", linkage.JointA, linkage.JointF},
	{"BC", linkage.JointB, linkage.JointC},
	{"DE", linkage.JointD, linkage.JointE},
	{"EF", linkage.JointE, linkage.JointF},
	{"FG", linkage.JointF, linkage.JointG},
	{"EG", linkage.JointE, linkage.JointG},
}

// App is the binding layer between a renderer and the solvers. It holds
// the current mechanism and a solving session so that consecutive Pose
// and Animate calls stay on one assembly branch.
type App struct {
	engine  *engine.Engine
	workers int
	verbose bool

	mu     sync.Mutex
	study  linkage.Study
	solver *kinematics.Solver
	angle  float64 // crank angle of the last animation frame, rad
}

// PointData is a JSON-serializable point.
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func pointData(p v2.Vec) PointData {
	return PointData{X: p.X, Y: p.Y}
}

// LinkData is one drawn link of a pose.
type LinkData struct {
	Name  string    `json:"name"`
	From  PointData `json:"from"`
	To    PointData `json:"to"`
	Color string    `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// FailureData describes a crank angle at which the leg could not be placed.
type FailureData struct {
	AngleDeg float64 `json:"angleDeg"`
	Joint    string  `json:"joint,omitempty"`
	Kind     string  `json:"kind,omitempty"`
	Message  string  `json:"message"`
}

// TrajectorySummary condenses a sweep for display.
type TrajectorySummary struct {
	Steps           int               `json:"steps"`
	Solved          int               `json:"solved"`
	Bounds          kinematics.Bounds `json:"bounds"`
	StrideLength    float64           `json:"strideLength"`
	StepHeight      float64           `json:"stepHeight"`
	ContactFraction float64           `json:"contactFraction"`
	MaxJump         float64           `json:"maxJump"`
	MaxSpeed        float64           `json:"maxSpeed"`
	FootPath        []PointData       `json:"footPath"`
	Failures        []FailureData     `json:"failures"`
}

// EvalResult is the full result returned to the frontend.
type EvalResult struct {
	Mechanism string             `json:"mechanism"`
	Geometry  *linkage.Geometry  `json:"geometry,omitempty"`
	Sweep     *linkage.SweepSpec `json:"sweep,omitempty"`
	Summary   *TrajectorySummary `json:"summary,omitempty"`
	Errors    []EvalErrorData    `json:"errors"`
	Warnings  []EvalErrorData    `json:"warnings"`
}

// VelocityData is the foot velocity at one crank angle.
type VelocityData struct {
	Speed       float64   `json:"speed"`
	Vector      PointData `json:"vector"`
	Approximate bool      `json:"approximate"`
	Error       string    `json:"error,omitempty"`
}

// PoseResult is the solved leg at one crank angle.
type PoseResult struct {
	AngleDeg float64              `json:"angleDeg"`
	Joints   map[string]PointData `json:"joints"`
	Links    []LinkData           `json:"links"`
	Foot     VelocityData         `json:"foot"`
	Contact  bool                 `json:"contact"`
	Error    string               `json:"error,omitempty"`
}

// NewApp creates a new App loaded with the reference mechanism.
func NewApp() *App {
	a := &App{
		engine:  engine.NewEngine(),
		workers: runtime.NumCPU(),
	}
	a.load(linkage.Study{Geometry: ptr(linkage.DefaultGeometry()), Sweep: linkage.DefaultSweep()})
	return a
}

func ptr[T any](v T) *T { return &v }

// load makes s the current mechanism and starts a fresh solving session.
func (a *App) load(s linkage.Study) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.study = s
	a.solver = kinematics.NewSolver(*s.Geometry)
	a.angle = s.Sweep.From
}

// current returns the loaded study.
func (a *App) current() linkage.Study {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.study
}

// Evaluate takes mechanism source, validates it, sweeps the crank and
// returns the summary + errors. On success the mechanism becomes current.
// This is the primary binding called by the frontend editor.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	// Step 1: Evaluate the source into a study.
	s, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		log.Printf("Evaluate fatal error: %v", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}

	// Step 2: Convert eval errors to the frontend format.
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}
	result.Mechanism = s.Geometry.Name
	result.Geometry = s.Geometry
	result.Sweep = &s.Sweep

	// Step 3: Validate geometry and sweep settings.
	vr := linkage.ValidateAll(*s.Geometry, s.Sweep)
	for _, w := range vr.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Message: subjectMessage(w.Subject, w.Message)})
	}
	if !vr.OK() {
		for _, e := range vr.Errors {
			result.Errors = append(result.Errors, EvalErrorData{Message: subjectMessage(e.Subject, e.Message)})
		}
		return result
	}

	// Step 4: Sweep the crank.
	a.load(*s)
	tr := kinematics.SweepParallel(*s.Geometry, s.Sweep, a.workers)
	result.Summary = summarize(tr)
	if a.verbose {
		for _, f := range tr.Failures() {
			log.Printf("Sweep %s: %.1f°: %v", s.Geometry.Name, kinematics.Deg(f.Angle), f.Err)
		}
	}

	return result
}

func subjectMessage(subject, msg string) string {
	if subject == "" {
		return msg
	}
	return subject + ": " + msg
}

// summarize converts a trajectory to its display summary.
func summarize(tr *kinematics.Trajectory) *TrajectorySummary {
	sum := &TrajectorySummary{
		Steps:           len(tr.Samples),
		Solved:          tr.Solved(),
		StrideLength:    tr.StrideLength(),
		StepHeight:      tr.StepHeight(),
		ContactFraction: tr.ContactFraction(),
		MaxJump:         tr.MaxJump(),
		MaxSpeed:        tr.MaxSpeed(),
		FootPath:        []PointData{},
		Failures:        []FailureData{},
	}
	sum.Bounds, _ = tr.Bounds()
	for _, p := range tr.FootPath() {
		sum.FootPath = append(sum.FootPath, pointData(p))
	}
	for _, f := range tr.Failures() {
		sum.Failures = append(sum.Failures, failureData(f.Angle, f.Err))
	}
	return sum
}

func failureData(theta float64, err error) FailureData {
	fd := FailureData{
		AngleDeg: kinematics.Deg(kinematics.NormalizeAngle(theta)),
		Message:  err.Error(),
	}
	var ge *kinematics.GeometryError
	if errors.As(err, &ge) {
		fd.Joint = string(ge.Joint)
		fd.Kind = ge.Kind.String()
	}
	return fd
}

// Pose solves the current mechanism at crank angle deg (degrees), seeded
// by the previous Pose or Animate call.
func (a *App) Pose(deg float64) PoseResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pose(kinematics.Rad(deg))
}

// pose must be called with a.mu held.
func (a *App) pose(theta float64) PoseResult {
	g := a.solver.Geometry()
	res := PoseResult{
		AngleDeg: kinematics.Deg(kinematics.NormalizeAngle(theta)),
		Joints:   map[string]PointData{},
		Links:    []LinkData{},
	}

	p, err := a.solver.Positions(theta)
	for j, v := range p.Map() {
		res.Joints[string(j)] = pointData(v)
	}
	for i, l := range linkSegments {
		from, _ := p.Get(l.from)
		to, _ := p.Get(l.to)
		res.Links = append(res.Links, LinkData{
			Name:  l.name,
			From:  pointData(from),
			To:    pointData(to),
			Color: colorPalette[i%len(colorPalette)],
		})
	}
	if err != nil {
		res.Error = err.Error()
		if a.verbose {
			log.Printf("Pose error: %v", err)
		}
		return res
	}

	res.Contact = math.Abs(p.G.Y) < a.study.Sweep.ContactHeight
	va, err := kinematics.VelocityAt(g, p, theta, a.study.Sweep.Omega)
	res.Foot = velocityData(va.Foot(), err)
	return res
}

func velocityData(f kinematics.FootVelocity, err error) VelocityData {
	vd := VelocityData{
		Speed:       f.Speed,
		Vector:      pointData(f.Vector),
		Approximate: f.Approximate,
	}
	if err != nil {
		vd.Error = err.Error()
	}
	return vd
}

// FootVelocity returns the foot velocity of the current mechanism at crank
// angle deg (degrees) for crank rate omega (rad/s).
func (a *App) FootVelocity(deg, omega float64) VelocityData {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := a.solver.Velocity(kinematics.Rad(deg), omega)
	if err != nil && a.verbose {
		log.Printf("FootVelocity error: %v", err)
	}
	return velocityData(f, err)
}

// Animate advances the crank by frames animation frames at the current
// sweep's crank rate and returns one pose per frame.
func (a *App) Animate(frames int) []PoseResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PoseResult, 0, max(frames, 0))
	step := kinematics.FrameStep(a.study.Sweep.Omega, kinematics.DefaultFPS)
	for i := 0; i < frames; i++ {
		a.angle += step
		out = append(out, a.pose(a.angle))
	}
	return out
}
