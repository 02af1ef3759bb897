// Package space defines the bounded integer parameter space searched by the
// optimizer and the candidate vectors that live in it.
package space

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/iwvelando/strategy-optimizer/pkg/mathutil"
)

// ErrInvalidSpace is returned when a parameter space cannot be constructed.
var ErrInvalidSpace = errors.New("invalid parameter space")

// Vector maps a parameter name to its ordered integer values.
type Vector map[string][]int

// Clone returns a deep copy of the vector.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	for name, values := range v {
		out[name] = append([]int(nil), values...)
	}
	return out
}

// Equal reports whether two vectors hold the same entries.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for name, values := range v {
		otherValues, ok := other[name]
		if !ok || len(otherValues) != len(values) {
			return false
		}
		for i := range values {
			if values[i] != otherValues[i] {
				return false
			}
		}
	}
	return true
}

// Names returns the vector's parameter names in sorted order.
func (v Vector) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bounds is an inclusive integer range.
type Bounds struct {
	Low  int `yaml:"low" json:"low" mapstructure:"low"`
	High int `yaml:"high" json:"high" mapstructure:"high"`
}

// Parameter is one bounded control parameter.
type Parameter struct {
	Name string
	Bounds
	Dim int
}

// Space is the immutable description of the searched parameters.
type Space struct {
	params   []Parameter
	template Vector
	dim      int
}

// New builds a Space from a template vector (providing dimensionalities and
// pass-through values) and bounds for the parameters under optimization.
func New(template Vector, bounds map[string]Bounds) (*Space, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("%w: template has no parameters", ErrInvalidSpace)
	}

	names := make([]string, 0, len(bounds))
	for name := range bounds {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Space{template: template.Clone()}
	for _, name := range names {
		b := bounds[name]
		values, ok := template[name]
		if !ok {
			return nil, fmt.Errorf("%w: bounds given for unknown parameter %q", ErrInvalidSpace, name)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: parameter %q has dimensionality 0", ErrInvalidSpace, name)
		}
		if b.Low > b.High {
			return nil, fmt.Errorf("%w: parameter %q lower bound %d exceeds upper bound %d", ErrInvalidSpace, name, b.Low, b.High)
		}
		s.params = append(s.params, Parameter{Name: name, Bounds: b, Dim: len(values)})
		s.dim += len(values)
	}
	if s.dim == 0 {
		return nil, fmt.Errorf("%w: no bounded parameters", ErrInvalidSpace)
	}
	return s, nil
}

// Dimensionality is the total number of bounded elements (k).
func (s *Space) Dimensionality() int {
	return s.dim
}

// Bounded returns the bounded parameters sorted by name.
func (s *Space) Bounded() []Parameter {
	return append([]Parameter(nil), s.params...)
}

// Parameter looks up a bounded parameter by name.
func (s *Space) Parameter(name string) (Parameter, bool) {
	for _, p := range s.params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// IsBounded reports whether name is under optimization.
func (s *Space) IsBounded(name string) bool {
	_, ok := s.Parameter(name)
	return ok
}

// Template returns a copy of the template vector.
func (s *Space) Template() Vector {
	return s.template.Clone()
}

// PassThrough returns the template entries that are not optimized, sorted by
// name.
func (s *Space) PassThrough() []string {
	var names []string
	for _, name := range s.template.Names() {
		if !s.IsBounded(name) {
			names = append(names, name)
		}
	}
	return names
}

// Random draws a vector whose bounded elements are uniform over their bounds
// and whose pass-through entries are copied from the template.
func (s *Space) Random(rng *rand.Rand) Vector {
	v := s.template.Clone()
	for _, p := range s.params {
		values := make([]int, p.Dim)
		for i := range values {
			values[i] = p.Low + rng.IntN(p.High-p.Low+1)
		}
		v[p.Name] = values
	}
	return v
}

// Contains reports whether every bounded entry of v has the right length and
// lies within bounds.
func (s *Space) Contains(v Vector) bool {
	return s.Check(v) == nil
}

// Check explains why v is not a member of the space.
func (s *Space) Check(v Vector) error {
	for _, p := range s.params {
		values, ok := v[p.Name]
		if !ok {
			return fmt.Errorf("parameter %q missing", p.Name)
		}
		if len(values) != p.Dim {
			return fmt.Errorf("parameter %q has %d values, expected %d", p.Name, len(values), p.Dim)
		}
		for i, value := range values {
			if !mathutil.WithinInt(value, p.Low, p.High) {
				return fmt.Errorf("parameter %q element %d value %d outside [%d, %d]", p.Name, i, value, p.Low, p.High)
			}
		}
	}
	return nil
}

// Clamp projects every bounded element of v onto its bounds in place.
func (s *Space) Clamp(v Vector) Vector {
	for _, p := range s.params {
		values := v[p.Name]
		for i := range values {
			values[i] = mathutil.ClampInt(values[i], p.Low, p.High)
		}
	}
	return v
}

// Merge returns a copy of v with any missing template entries filled in.
func (s *Space) Merge(v Vector) Vector {
	out := v.Clone()
	if out == nil {
		out = make(Vector, len(s.template))
	}
	for name, values := range s.template {
		if _, ok := out[name]; !ok {
			out[name] = append([]int(nil), values...)
		}
	}
	return out
}
