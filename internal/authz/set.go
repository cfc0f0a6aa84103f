// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import "strings"

// Set is an immutable, insertion-ordered set of role or permission names.
// The zero value is an empty set.
type Set struct {
	values []string
	index  map[string]struct{}
}

// NewSet builds a set from values, keeping first-seen order and dropping duplicates.
// Blank names are kept so that Requirement.Validate can reject them.
func NewSet(values ...string) Set {
	s := Set{index: make(map[string]struct{}, len(values))}
	for _, v := range values {
		if _, dup := s.index[v]; dup {
			continue
		}
		s.index[v] = struct{}{}
		s.values = append(s.values, v)
	}
	return s
}

// With returns a new set holding s followed by values.
func (s Set) With(values ...string) Set {
	return NewSet(append(s.Values(), values...)...)
}

// Union returns a new set holding s followed by other.
func (s Set) Union(other Set) Set {
	return s.With(other.values...)
}

// Has reports membership.
func (s Set) Has(v string) bool {
	_, ok := s.index[v]
	return ok
}

// HasAny reports whether s shares at least one member with other.
// It is false when other is empty.
func (s Set) HasAny(other Set) bool {
	for _, v := range other.values {
		if s.Has(v) {
			return true
		}
	}
	return false
}

// HasAll reports whether s is a superset of other. It is true when other is empty.
func (s Set) HasAll(other Set) bool {
	for _, v := range other.values {
		if !s.Has(v) {
			return false
		}
	}
	return true
}

// Len returns the number of members.
func (s Set) Len() int { return len(s.values) }

// IsEmpty reports whether the set has no members.
func (s Set) IsEmpty() bool { return len(s.values) == 0 }

// Values returns the members in insertion order. The slice is a copy.
func (s Set) Values() []string {
	if len(s.values) == 0 {
		return nil
	}
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// String renders the set as "[a, b]".
func (s Set) String() string {
	return "[" + strings.Join(s.values, ", ") + "]"
}
