// Package verify holds the pluggable fact checkers that score a candidate
// location against the clues extracted from an image. Verifiers are pure:
// same candidate and clues always produce the same finding, and nothing is
// mutated.
package verify

import (
	"context"
	"sort"

	"github.com/geomind-labs/geomind/internal/model"
)

// Finding is one verifier's overall read on a candidate, with the
// individual evidence items behind it.
type Finding struct {
	Confidence float64
	Evidence   []model.Evidence
}

// Verifier checks one candidate against the session's clues.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, cand model.Candidate, clues *model.Clues) (Finding, error)
}

// Registry maps verifier names to instances.
type Registry map[string]Verifier

// DefaultRegistry returns all built-in verifiers.
func DefaultRegistry() Registry {
	r := Registry{}
	for _, v := range []Verifier{NewOCRPOI(), NewLanguagePrior(), NewRoadTopology(), NewGPSPrior()} {
		r[v.Name()] = v
	}
	return r
}

// Select returns the named verifiers that exist in the registry, in a
// stable order. Unknown names are ignored.
func (r Registry) Select(names []string) []Verifier {
	out := make([]Verifier, 0, len(names))
	for _, name := range names {
		if v, ok := r[name]; ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names lists the registered verifier names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
