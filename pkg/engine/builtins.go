package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	v2 "github.com/deadsy/sdfx/vec/v2"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/pkg/errors"

	"github.com/chazu/jansen/pkg/linkage"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms mechanism source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: reference-leg -> reference_leg
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec2 wraps a planar point.
type sexpVec2 struct {
	vec v2.Vec
}

func (v *sexpVec2) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec2 %g %g)", v.vec.X, v.vec.Y)
}
func (v *sexpVec2) Type() *zygo.RegisteredType { return nil }

// sexpMechanism wraps a geometry so it can be returned from `mechanism`
// and used as the base of another.
type sexpMechanism struct {
	geom linkage.Geometry
}

func (m *sexpMechanism) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(mechanism %q)", m.geom.Name)
}
func (m *sexpMechanism) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// unknownKeywords returns the keywords in pa that are not in allowed, sorted.
func (pa kwArgs) unknownKeywords(allowed ...string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	var out []string
	for k := range pa.kw {
		if !ok[k] {
			out = append(out, ":"+k)
		}
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, errors.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer from a Sexp. Floats are accepted when they
// hold a whole number.
func toInt(s zygo.Sexp) (int, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		if v.Val == math.Trunc(v.Val) && !math.IsInf(v.Val, 0) {
			return int(v.Val), nil
		}
		return 0, errors.Errorf("expected integer, got %g", v.Val)
	}
	return 0, errors.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", errors.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec2 extracts a point from a sexpVec2.
func toVec2(s zygo.Sexp) (v2.Vec, error) {
	if v, ok := s.(*sexpVec2); ok {
		return v.vec, nil
	}
	return v2.Vec{}, errors.Errorf("expected vec2, got %T (%s)", s, s.SexpString(nil))
}

// toMechanism extracts a geometry from a sexpMechanism.
func toMechanism(s zygo.Sexp) (linkage.Geometry, error) {
	if m, ok := s.(*sexpMechanism); ok {
		return m.geom, nil
	}
	return linkage.Geometry{}, errors.Errorf("expected mechanism, got %T (%s)", s, s.SexpString(nil))
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// studyBuilder collects what the builtins define during one evaluation.
type studyBuilder struct {
	geom     *linkage.Geometry
	sweep    linkage.SweepSpec
	hasSweep bool
}

// study returns the collected study, or an error when the source defined
// no mechanism.
func (b *studyBuilder) study() (*linkage.Study, error) {
	if b.geom == nil {
		return nil, errors.New("source defines no mechanism")
	}
	s := &linkage.Study{Geometry: b.geom, Sweep: linkage.DefaultSweep()}
	if b.hasSweep {
		s.Sweep = b.sweep
	}
	return s, nil
}

// frameKeys and lengthKeys are the keywords `mechanism` understands, in
// the order missing ones are reported.
var (
	frameKeys  = []string{"O", "C", "D"}
	lengthKeys = []string{"OA", "AB", "BF", "BC", "DE", "EF", "FG", "EG"}
)

// framePoint returns a pointer to the frame point named key.
func framePoint(f *linkage.Frame, key string) *v2.Vec {
	switch key {
	case "O":
		return &f.O
	case "C":
		return &f.C
	case "D":
		return &f.D
	}
	return nil
}

// linkLength returns a pointer to the link length named key.
func linkLength(l *linkage.Lengths, key string) *float64 {
	switch key {
	case "OA":
		return &l.OA
	case "AB":
		return &l.AB
	case "BF":
		return &l.BF
	case "BC":
		return &l.BC
	case "DE":
		return &l.DE
	case "EF":
		return &l.EF
	case "FG":
		return &l.FG
	case "EG":
		return &l.EG
	}
	return nil
}

// registerBuiltins installs the mechanism DSL builtins into a zygomys
// environment. The builtins record their results in b.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *studyBuilder) {

	// -----------------------------------------------------------------------
	// (vec2 -4.3 -1.2)
	// -----------------------------------------------------------------------
	env.AddFunction("vec2", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, errors.Errorf("vec2 requires exactly 2 arguments, got %d", len(args))
		}

		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, errors.Wrap(err, "vec2: x")
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, errors.Wrap(err, "vec2: y")
		}

		return &sexpVec2{vec: v2.Vec{X: x, Y: y}}, nil
	})

	// -----------------------------------------------------------------------
	// (deg 90) => 1.5707...
	// -----------------------------------------------------------------------
	env.AddFunction("deg", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, errors.Errorf("deg requires exactly 1 argument, got %d", len(args))
		}
		d, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, errors.Wrap(err, "deg")
		}
		return &zygo.SexpFloat{Val: d * math.Pi / 180}, nil
	})

	// -----------------------------------------------------------------------
	// (reference-leg)
	//
	// Registered as "reference_leg"; the preprocessor rewrites the hyphen.
	// -----------------------------------------------------------------------
	env.AddFunction("reference_leg", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 0 {
			return zygo.SexpNull, errors.Errorf("reference-leg takes no arguments, got %d", len(args))
		}
		return &sexpMechanism{geom: linkage.DefaultGeometry()}, nil
	})

	// -----------------------------------------------------------------------
	// (mechanism "name"
	//   :O (vec2 0 0) :C (vec2 -4.3 -1.2) :D (vec2 -2 1.3)
	//   :OA 1 :AB 3 :BF 4.34 :BC 2.28 :DE 3.8 :EF 3.7 :FG 5.65 :EG 9.1)
	//
	// (mechanism "variant" :from (reference-leg) :C (vec2 -3.8 -1.0))
	// -----------------------------------------------------------------------
	env.AddFunction("mechanism", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		if len(pa.positional) != 1 {
			return zygo.SexpNull, errors.New("mechanism requires exactly one name argument")
		}
		mechName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, errors.Wrap(err, "mechanism: name")
		}
		if b.geom != nil {
			return zygo.SexpNull, errors.Errorf("mechanism: %q already defined; only one mechanism per source", b.geom.Name)
		}

		allowed := append(append([]string{"from"}, frameKeys...), lengthKeys...)
		if unknown := pa.unknownKeywords(allowed...); len(unknown) > 0 {
			return zygo.SexpNull, errors.Errorf("mechanism: unknown keyword %s", strings.Join(unknown, " "))
		}

		var g linkage.Geometry
		_, hasBase := pa.kw["from"]
		if hasBase {
			g, err = toMechanism(pa.kw["from"])
			if err != nil {
				return zygo.SexpNull, errors.Wrap(err, "mechanism: from")
			}
		}
		g.Name = mechName

		var missing []string
		for _, key := range frameKeys {
			v, ok := pa.kw[key]
			if !ok {
				if !hasBase {
					missing = append(missing, ":"+key)
				}
				continue
			}
			p, err := toVec2(v)
			if err != nil {
				return zygo.SexpNull, errors.Wrapf(err, "mechanism: %s", key)
			}
			*framePoint(&g.Frame, key) = p
		}
		for _, key := range lengthKeys {
			v, ok := pa.kw[key]
			if !ok {
				if !hasBase {
					missing = append(missing, ":"+key)
				}
				continue
			}
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, errors.Wrapf(err, "mechanism: %s", key)
			}
			*linkLength(&g.Lengths, key) = f
		}
		if len(missing) > 0 {
			return zygo.SexpNull, errors.Errorf("mechanism: missing %s", strings.Join(missing, " "))
		}

		b.geom = &g
		return &sexpMechanism{geom: g}, nil
	})

	// -----------------------------------------------------------------------
	// (sweep :steps 360 :omega 0.1 :contact 0.5 :from 0 :to (deg 360))
	// -----------------------------------------------------------------------
	env.AddFunction("sweep", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, errors.New("sweep takes keyword arguments only")
		}
		if b.hasSweep {
			return zygo.SexpNull, errors.New("sweep: already defined")
		}
		if unknown := pa.unknownKeywords("steps", "omega", "contact", "from", "to"); len(unknown) > 0 {
			return zygo.SexpNull, errors.Errorf("sweep: unknown keyword %s", strings.Join(unknown, " "))
		}

		s := linkage.DefaultSweep()
		if v, ok := pa.kw["steps"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, errors.Wrap(err, "sweep: steps")
			}
			s.Steps = n
		}
		floats := []struct {
			key string
			dst *float64
		}{
			{"omega", &s.Omega},
			{"contact", &s.ContactHeight},
			{"from", &s.From},
			{"to", &s.To},
		}
		for _, f := range floats {
			v, ok := pa.kw[f.key]
			if !ok {
				continue
			}
			x, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, errors.Wrapf(err, "sweep: %s", f.key)
			}
			*f.dst = x
		}
		if _, ok := pa.kw["from"]; ok {
			if _, ok := pa.kw["to"]; !ok {
				// A bare :from keeps one full revolution.
				s.To = s.From + 2*math.Pi
			}
		}

		b.sweep = s
		b.hasSweep = true
		return zygo.SexpNull, nil
	})
}
