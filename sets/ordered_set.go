package sets

import (
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// An OrderedSet marshals in sorted order, so reports built from it compare
// equal across runs.
type OrderedSet[T constraints.Ordered] map[T]struct{}

func NewOrderedSet[T constraints.Ordered](vs ...T) OrderedSet[T] {
	return OrderedSet[T](NewSet(vs...))
}

func (s OrderedSet[T]) Size() int {
	return Set[T](s).Size()
}

func (s OrderedSet[T]) Contains(v T) bool {
	return Set[T](s).Contains(v)
}

func (s OrderedSet[T]) Insert(vs ...T) {
	Set[T](s).Insert(vs...)
}

// Marshals as a sorted slice.
func (s OrderedSet[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.AsSlice())
}

func (s *OrderedSet[T]) UnmarshalJSON(text []byte) error {
	var slice []T
	if err := json.Unmarshal(text, &slice); err != nil {
		return errors.Wrapf(err, "failed to unmarshal ordered set")
	}
	*s = NewOrderedSet(slice...)
	return nil
}

// Returns the set as a sorted slice.
func (s OrderedSet[T]) AsSlice() []T {
	rv := Set[T](s).AsSlice()
	slices.Sort(rv)
	return rv
}
