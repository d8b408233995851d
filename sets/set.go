package sets

import (
	"golang.org/x/exp/maps"
)

type Set[T comparable] map[T]struct{}

func NewSet[T comparable](vs ...T) Set[T] {
	s := make(Set[T], len(vs))
	for _, v := range vs {
		s.Insert(v)
	}
	return s
}

func (s Set[T]) Size() int {
	return len(s)
}

func (s Set[T]) Contains(v T) bool {
	_, exists := s[v]
	return exists
}

func (s Set[T]) Insert(vs ...T) {
	for _, v := range vs {
		s[v] = struct{}{}
	}
}

// Returns the elements of vs that are members of s, keeping the order (and
// any repetition) of vs.
func (s Set[T]) Filter(vs []T) []T {
	var rv []T
	for _, v := range vs {
		if s.Contains(v) {
			rv = append(rv, v)
		}
	}
	return rv
}

// AsSlice returns the set as a slice in a nondeterministic order.
func (s Set[T]) AsSlice() []T {
	return maps.Keys(s)
}
