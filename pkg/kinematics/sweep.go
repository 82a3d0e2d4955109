package kinematics

import (
	"math"
	"sync"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"github.com/chazu/jansen/pkg/linkage"
)

// coarseStep is the largest crank advance the seed pass of SweepParallel
// takes between solves.
const coarseStep = 5 * math.Pi / 180

// Sample is one crank angle of a sweep.
type Sample struct {
	Angle     float64           `json:"angle"` // rad
	Positions linkage.Positions `json:"positions"`
	Foot      FootVelocity      `json:"foot"`
	// Contact is set when the foot is within the sweep's contact height of
	// the ground line y = 0.
	Contact bool `json:"contact"`

	// Err is the position failure, if any. Positions then hold the
	// best-effort points and Foot is zero.
	Err error `json:"-"`
	// VelocityErr is set when positions solved but the velocity loops
	// were degenerate.
	VelocityErr error `json:"-"`
}

// Solved reports whether every joint was placed.
func (s Sample) Solved() bool {
	return s.Err == nil
}

// Trajectory is the result of sweeping the crank over a SweepSpec.
type Trajectory struct {
	Geometry linkage.Geometry  `json:"geometry"`
	Spec     linkage.SweepSpec `json:"spec"`
	Samples  []Sample          `json:"samples"`
}

// Bounds is the axis-aligned extent of the foot path.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// Width returns MaxX - MinX.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns MaxY - MinY.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Sweep solves g at every angle of spec in order with a single Solver, so
// each step is seeded by the one before it.
func Sweep(g linkage.Geometry, spec linkage.SweepSpec) *Trajectory {
	t := &Trajectory{Geometry: g, Spec: spec}
	if spec.Steps <= 0 {
		return t
	}
	t.Samples = make([]Sample, spec.Steps)
	sweepRange(NewSolver(g), spec, t.Samples, 0)
	return t
}

// SweepParallel computes the same trajectory as Sweep using up to workers
// goroutines. The range is split into contiguous chunks. A sequential
// coarse pass walks the crank to each chunk start so that every worker's
// Solver begins on the assembly branch a sequential sweep would be on.
func SweepParallel(g linkage.Geometry, spec linkage.SweepSpec, workers int) *Trajectory {
	if workers <= 1 || spec.Steps < 2*workers {
		return Sweep(g, spec)
	}

	t := &Trajectory{Geometry: g, Spec: spec, Samples: make([]Sample, spec.Steps)}
	chunk := (spec.Steps + workers - 1) / workers

	// Seed pass.
	seeds := make([]linkage.Continuity, 0, workers)
	starts := make([]int, 0, workers)
	walker := NewSolver(g)
	angle := spec.From
	for start := 0; start < spec.Steps; start += chunk {
		target := spec.Angle(start)
		for _, a := range coarseAngles(angle, target) {
			_, _ = walker.Positions(a)
		}
		angle = target
		seeds = append(seeds, walker.Continuity())
		starts = append(starts, start)
	}

	var wg sync.WaitGroup
	for i, start := range starts {
		end := start + chunk
		if end > spec.Steps {
			end = spec.Steps
		}
		wg.Add(1)
		go func(seed linkage.Continuity, start, end int) {
			defer wg.Done()
			s := NewSolver(g)
			s.Seed(seed)
			sweepRange(s, spec, t.Samples[start:end], start)
		}(seeds[i], start, end)
	}
	wg.Wait()
	return t
}

// coarseAngles returns the intermediate angles strictly after from up to
// and including to, spaced no more than coarseStep apart. It is empty when
// from == to.
func coarseAngles(from, to float64) []float64 {
	span := to - from
	if span == 0 {
		return nil
	}
	n := int(math.Ceil(math.Abs(span) / coarseStep))
	out := make([]float64, n)
	for i := 1; i <= n; i++ {
		out[i-1] = from + span*float64(i)/float64(n)
	}
	return out
}

// sweepRange fills dst with the samples offset, offset+1, ... of spec.
func sweepRange(s *Solver, spec linkage.SweepSpec, dst []Sample, offset int) {
	g := s.Geometry()
	for i := range dst {
		theta := spec.Angle(offset + i)
		smp := Sample{Angle: theta}
		smp.Positions, smp.Err = s.Positions(theta)
		if smp.Err == nil {
			a, err := VelocityAt(g, smp.Positions, theta, spec.Omega)
			if err != nil {
				smp.VelocityErr = err
			} else {
				smp.Foot = a.Foot()
			}
			smp.Contact = math.Abs(smp.Positions.G.Y) < spec.ContactHeight
		}
		dst[i] = smp
	}
}

// Solved returns the number of samples whose positions solved.
func (t *Trajectory) Solved() int {
	n := 0
	for _, s := range t.Samples {
		if s.Solved() {
			n++
		}
	}
	return n
}

// Failures returns the samples whose positions did not solve.
func (t *Trajectory) Failures() []Sample {
	var out []Sample
	for _, s := range t.Samples {
		if !s.Solved() {
			out = append(out, s)
		}
	}
	return out
}

// FootPath returns the foot position of every solved sample, in order.
func (t *Trajectory) FootPath() []v2.Vec {
	out := make([]v2.Vec, 0, len(t.Samples))
	for _, s := range t.Samples {
		if s.Solved() {
			out = append(out, s.Positions.G)
		}
	}
	return out
}

// Bounds returns the extent of the foot path. ok is false when no sample
// solved.
func (t *Trajectory) Bounds() (b Bounds, ok bool) {
	for _, p := range t.FootPath() {
		if !ok {
			b = Bounds{MinX: p.X, MaxX: p.X, MinY: p.Y, MaxY: p.Y}
			ok = true
			continue
		}
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b, ok
}

// StrideLength is the horizontal extent of the foot path.
func (t *Trajectory) StrideLength() float64 {
	b, _ := t.Bounds()
	return b.Width()
}

// StepHeight is the vertical extent of the foot path.
func (t *Trajectory) StepHeight() float64 {
	b, _ := t.Bounds()
	return b.Height()
}

// ContactFraction is the share of solved samples in ground contact.
func (t *Trajectory) ContactFraction() float64 {
	solved, contact := 0, 0
	for _, s := range t.Samples {
		if !s.Solved() {
			continue
		}
		solved++
		if s.Contact {
			contact++
		}
	}
	if solved == 0 {
		return 0
	}
	return float64(contact) / float64(solved)
}

// MaxJump is the largest foot displacement between two consecutive
// samples that both solved. A continuous sweep keeps it near the arc
// length of one step.
func (t *Trajectory) MaxJump() float64 {
	var m float64
	for i := 1; i < len(t.Samples); i++ {
		a, b := t.Samples[i-1], t.Samples[i]
		if !a.Solved() || !b.Solved() {
			continue
		}
		m = math.Max(m, b.Positions.G.Sub(a.Positions.G).Length())
	}
	return m
}

// MaxSpeed is the largest foot speed over the sweep.
func (t *Trajectory) MaxSpeed() float64 {
	var m float64
	for _, s := range t.Samples {
		if s.Solved() && s.VelocityErr == nil {
			m = math.Max(m, s.Foot.Speed)
		}
	}
	return m
}
