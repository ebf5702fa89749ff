package store

import "sort"

// Set is a grow-only set. It has no removal operation: once a member is
// added it stays for the lifetime of the value. Both the collection cache and
// the lock registry are built on it.
type Set[T ~string] struct {
	members map[T]struct{}
}

// NewSet returns a set holding items.
func NewSet[T ~string](items ...T) *Set[T] {
	s := &Set[T]{members: make(map[T]struct{}, len(items))}
	s.Add(items...)
	return s
}

// Add unions items into the set and returns how many were new.
func (s *Set[T]) Add(items ...T) int {
	if s.members == nil {
		s.members = make(map[T]struct{}, len(items))
	}
	added := 0
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := s.members[item]; ok {
			continue
		}
		s.members[item] = struct{}{}
		added++
	}
	return added
}

// Union adds every member of other and returns how many were new.
func (s *Set[T]) Union(other *Set[T]) int {
	if other == nil {
		return 0
	}
	added := 0
	for item := range other.members {
		added += s.Add(item)
	}
	return added
}

// Contains reports membership.
func (s *Set[T]) Contains(item T) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[item]
	return ok
}

// Len returns the number of members.
func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Sorted returns the members in ascending order.
func (s *Set[T]) Sorted() []T {
	if s == nil {
		return nil
	}
	out := make([]T, 0, len(s.members))
	for item := range s.members {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s *Set[T]) Clone() *Set[T] {
	c := NewSet[T]()
	c.Union(s)
	return c
}

func toStrings[T ~string](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = string(item)
	}
	return out
}

func fromStrings[T ~string](items []string) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = T(item)
	}
	return out
}
