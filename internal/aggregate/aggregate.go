// Package aggregate merges per-sample attributes into study-level summaries.
package aggregate

import (
	"math/rand/v2"
	"sort"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// MaxRawStrings caps the raw characteristic strings kept per study.
const MaxRawStrings = 10

// sourceNameField is the attribute name under which sample source names are
// aggregated alongside the characteristics.
const sourceNameField = "source_name"

// Sampler draws k distinct indexes from [0, n) without replacement.
type Sampler func(n, k int) []int

// Aggregator builds AggregatedSampleMetadata values.
type Aggregator struct {
	sample Sampler
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithSampler replaces the random index sampler.
func WithSampler(s Sampler) Option {
	return func(a *Aggregator) { a.sample = s }
}

// New constructs an Aggregator that samples uniformly at random.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{sample: randomIndexes}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate collects the distinct values per attribute name across samples
// and keeps a bounded random subset of their raw strings.
func (a *Aggregator) Aggregate(samples []geo.SampleAttributes) geo.AggregatedSampleMetadata {
	sets := make(map[string]map[string]struct{})
	var order []string
	add := func(key, value string) {
		set, ok := sets[key]
		if !ok {
			set = make(map[string]struct{})
			sets[key] = set
			order = append(order, key)
		}
		set[value] = struct{}{}
	}

	var pooled []string
	for _, s := range samples {
		for _, key := range geo.SortedKeys(s.Characteristics) {
			add(key, s.Characteristics[key])
		}
		if s.SourceName != nil {
			add(sourceNameField, *s.SourceName)
		}
		pooled = append(pooled, s.RawStrings...)
	}

	values := make(map[string][]string, len(sets))
	for key, set := range sets {
		list := make([]string, 0, len(set))
		for v := range set {
			list = append(list, v)
		}
		sort.Strings(list)
		values[key] = list
	}

	return geo.AggregatedSampleMetadata{
		Values:            values,
		AllMetadataFields: order,
		RawStrings:        a.pick(pooled),
	}
}

func (a *Aggregator) pick(pooled []string) []string {
	if len(pooled) < MaxRawStrings {
		return append([]string{}, pooled...)
	}
	idx := a.sample(len(pooled), MaxRawStrings)
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, pooled[i])
	}
	return out
}

func randomIndexes(n, k int) []int {
	return rand.Perm(n)[:k]
}
