package model

import (
	"encoding/json"
	"sort"
)

// Set is an unordered collection of strings with a stable, sorted JSON form.
type Set map[string]struct{}

// NewSet creates a set holding the given values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts v and reports whether it was not already present.
func (s Set) Add(v string) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of elements.
func (s Set) Len() int {
	return len(s)
}

// Union adds every element of other to s.
func (s Set) Union(other Set) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// ContainsAll reports whether every element of other is in s.
func (s Set) ContainsAll(other Set) bool {
	for v := range other {
		if _, ok := s[v]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold exactly the same elements.
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && s.ContainsAll(other)
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for v := range s {
		c[v] = struct{}{}
	}
	return c
}

// Sorted returns the elements in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewSet(values...)
	return nil
}
