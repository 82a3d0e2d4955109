// Package linkage defines the data model of a seven-bar Jansen-style leg:
// fixed frame points, link lengths, solved joint positions and the
// continuity seed that keeps a sweep on one assembly branch.
//
// All values are plain immutable structs. Units follow the link lengths
// given at construction (the bundled mechanism uses centimetres).
package linkage
