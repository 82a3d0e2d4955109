package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
)

// defaultSource is evaluated when no file is given.
const defaultSource = `(mechanism "jansen-modified" :from (reference-leg))`

// poseReport is printed for -angle.
type poseReport struct {
	Mechanism string       `json:"mechanism"`
	Pose      PoseResult   `json:"pose"`
	Velocity  VelocityData `json:"velocity"`
}

func main() {
	var (
		file    = flag.String("f", "", "mechanism source file (default: reference leg)")
		angle   = flag.Float64("angle", 0, "solve one pose at this crank angle, degrees")
		omega   = flag.Float64("omega", 0, "crank rate for -angle, rad/s (default: the sweep's)")
		sweep   = flag.Bool("sweep", false, "print the sweep summary even when -angle is set")
		frames  = flag.Int("frames", 0, "print this many animation frames")
		workers = flag.Int("workers", 0, "sweep goroutines (default: number of CPUs)")
		verbose = flag.Bool("v", false, "log solver failures")
	)
	flag.Parse()

	angleSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "angle" {
			angleSet = true
		}
	})

	if err := run(*file, *verbose, *workers, func(app *App, res EvalResult) []any {
		var out []any
		if *sweep || (!angleSet && *frames == 0) {
			out = append(out, res)
		}
		if angleSet {
			w := *omega
			if w == 0 {
				w = app.current().Sweep.Omega
			}
			out = append(out, poseReport{
				Mechanism: res.Mechanism,
				Pose:      app.Pose(*angle),
				Velocity:  app.FootVelocity(*angle, w),
			})
		}
		if *frames > 0 {
			out = append(out, app.Animate(*frames))
		}
		return out
	}); err != nil {
		log.Printf("jansen: %v", err)
		os.Exit(1)
	}
}

// run evaluates the source and prints every value report returns as JSON.
func run(file string, verbose bool, workers int, report func(*App, EvalResult) []any) error {
	source := defaultSource
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrap(err, "read source")
		}
		source = string(b)
	}

	app := NewApp()
	app.verbose = verbose
	if workers > 0 {
		app.workers = workers
	}

	res := app.Evaluate(source)
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			if e.Line > 0 {
				fmt.Fprintf(os.Stderr, "%s:%d: %s\n", file, e.Line, e.Message)
			} else {
				fmt.Fprintln(os.Stderr, e.Message)
			}
		}
		return errors.Errorf("%d error(s) in mechanism source", len(res.Errors))
	}
	for _, w := range res.Warnings {
		log.Printf("warning: %s", w.Message)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, v := range report(app, res) {
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "write output")
		}
	}
	return nil
}
