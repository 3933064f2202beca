package optimizer

import (
	"math/rand"
	"sort"

	"automl-engine/core/models"

	"github.com/elliotchance/orderedmap"
)

// SearchSpace is an ordered parameter -> candidate values mapping. Parameters
// are kept in name order so enumeration is stable across runs.
type SearchSpace struct {
	params *orderedmap.OrderedMap
}

// NewSearchSpace builds a search space from a parameter map
func NewSearchSpace(space map[string][]any) *SearchSpace {
	names := make([]string, 0, len(space))
	for name := range space {
		names = append(names, name)
	}
	sort.Strings(names)

	params := orderedmap.NewOrderedMap()
	for _, name := range names {
		params.Set(name, append([]any(nil), space[name]...))
	}
	return &SearchSpace{params: params}
}

// Names returns parameter names in enumeration order
func (s *SearchSpace) Names() []string {
	names := make([]string, 0, s.params.Len())
	for el := s.params.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key.(string))
	}
	return names
}

// Values returns the candidate values of one parameter
func (s *SearchSpace) Values(name string) []any {
	v, ok := s.params.Get(name)
	if !ok {
		return nil
	}
	return v.([]any)
}

// Size is the number of distinct assignments. An empty space has exactly one
// (the empty assignment).
func (s *SearchSpace) Size() int {
	size := 1
	for el := s.params.Front(); el != nil; el = el.Next() {
		size *= len(el.Value.([]any))
	}
	return size
}

// At decodes a grid index into an assignment. The last parameter varies fastest.
func (s *SearchSpace) At(index int) map[string]any {
	size := s.Size()
	if size == 0 {
		return map[string]any{}
	}
	index %= size

	names := s.Names()
	out := make(map[string]any, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		values := s.Values(names[i])
		out[names[i]] = values[index%len(values)]
		index /= len(values)
	}
	return out
}

// Map returns the space as a plain map
func (s *SearchSpace) Map() map[string][]any {
	out := make(map[string][]any, s.params.Len())
	for el := s.params.Front(); el != nil; el = el.Next() {
		out[el.Key.(string)] = append([]any(nil), el.Value.([]any)...)
	}
	return out
}

// Strategy proposes the next assignment to evaluate
type Strategy interface {
	Propose(space *SearchSpace, proposed int) map[string]any
}

// GridStrategy walks the grid in order and wraps when the budget exceeds it
type GridStrategy struct{}

// Propose returns the grid point after the ones already proposed
func (GridStrategy) Propose(space *SearchSpace, proposed int) map[string]any {
	return space.At(proposed)
}

// RandomStrategy samples each parameter independently
type RandomStrategy struct {
	rng *rand.Rand
}

// NewRandomStrategy creates a seeded random strategy
func NewRandomStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

// Propose draws one value per parameter
func (r *RandomStrategy) Propose(space *SearchSpace, _ int) map[string]any {
	out := make(map[string]any)
	for _, name := range space.Names() {
		values := space.Values(name)
		if len(values) == 0 {
			continue
		}
		out[name] = values[r.rng.Intn(len(values))]
	}
	return out
}

// StrategyFor maps a method label to a proposal strategy. Only grid has its
// own strategy; the model-based labels sample randomly until an external
// strategy is plugged in.
func StrategyFor(method models.OptimizationMethod, seed int64) Strategy {
	if method == models.MethodGrid {
		return GridStrategy{}
	}
	return NewRandomStrategy(seed)
}
