// Package params filters caller-supplied generation parameters down to the
// names a backend operation accepts.
package params

import (
	"sort"

	"github.com/rs/zerolog"
)

// NameSet is a fixed set of accepted parameter names.
type NameSet map[string]struct{}

// NewNameSet builds a NameSet from names.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is accepted.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the set members in sorted order.
func (s NameSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set holding every name accepted by any of sets.
func Union(sets ...NameSet) NameSet {
	out := make(NameSet)
	for _, s := range sets {
		for n := range s {
			out[n] = struct{}{}
		}
	}
	return out
}

// Filter returns a copy of candidate holding only accepted keys, plus the
// sorted list of keys that were dropped. candidate is not modified.
func Filter(candidate map[string]any, accepted NameSet) (map[string]any, []string) {
	filtered := make(map[string]any, len(candidate))
	var rejected []string
	for k, v := range candidate {
		if accepted.Has(k) {
			filtered[k] = v
			continue
		}
		rejected = append(rejected, k)
	}
	sort.Strings(rejected)
	return filtered, rejected
}

// Validator wraps Filter with one warning per rejected key.
type Validator struct {
	Logger zerolog.Logger
	// OnReject, if set, is called once per rejected key with the scope it was
	// rejected from.
	OnReject func(scope, name string)
}

// Filter drops keys of candidate that are not in accepted and warns about
// each of them. scope names the operation the parameters are destined for
// (e.g. "generate_stream") and shows up in the diagnostic.
func (v Validator) Filter(candidate map[string]any, accepted NameSet, scope string) map[string]any {
	filtered, rejected := Filter(candidate, accepted)
	for _, name := range rejected {
		v.Logger.Warn().
			Str("param", name).
			Str("scope", scope).
			Str("action", "removed").
			Msgf("invalid %s parameter %q, removing it", scope, name)
		if v.OnReject != nil {
			v.OnReject(scope, name)
		}
	}
	return filtered
}

// Merge returns a new map holding defaults overlaid with overrides. Keys in
// overrides win. Neither input is modified.
func Merge(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
