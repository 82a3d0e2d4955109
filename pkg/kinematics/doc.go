// Package kinematics solves the positions and velocities of the seven-bar
// leg described by a linkage.Geometry.
//
// Positions are found loop by loop: the crank pin A in closed form, then B
// (loop O-A-B-C), F along the rigid A-B-F bar, E (loop D-E-F) and the foot
// G (loop E-F-G). Each loop is two distance constraints on one unknown
// joint and is handed to the nlsolve root finder, seeded by the previous
// solution so that consecutive angles stay on one assembly branch.
//
// Velocities differentiate the same loops, giving one 2x2 linear system
// per loop solved in the same order.
//
// A Solver owns its continuity state and is not safe for concurrent use.
// Use one Solver per goroutine, or SweepParallel.
package kinematics
