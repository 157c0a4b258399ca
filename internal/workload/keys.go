// Package workload produces keys, records and command streams for loading and
// exercising a database.
package workload

import (
	"math/rand/v2"

	"pagedb/internal/base"
)

// KeySource yields keys until it is exhausted.
type KeySource interface {
	Next() (base.Key, bool)
}

// RandomKeys draws keys uniformly from [0, max) without repeats. The set of
// keys already handed out belongs to the source, so independent sources
// never interfere.
type RandomKeys struct {
	rng  *rand.Rand
	max  int32
	used map[base.Key]struct{}
}

// NewRandomKeys returns a deterministic source for the given seed.
func NewRandomKeys(seed uint64, max int32) *RandomKeys {
	return &RandomKeys{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		max:  max,
		used: make(map[base.Key]struct{}),
	}
}

// Next returns a key not returned before, or false once all max keys have
// been drawn.
func (r *RandomKeys) Next() (base.Key, bool) {
	if r.max <= 0 || int64(len(r.used)) >= int64(r.max) {
		return 0, false
	}
	for {
		k := base.Key(r.rng.Int32N(r.max))
		if _, dup := r.used[k]; dup {
			continue
		}
		r.used[k] = struct{}{}
		return k, true
	}
}

// SequentialKeys yields from, from+1, ... up to and including to.
type SequentialKeys struct {
	next, to base.Key
	done     bool
}

func NewSequentialKeys(from, to base.Key) *SequentialKeys {
	return &SequentialKeys{next: from, to: to, done: from > to}
}

func (s *SequentialKeys) Next() (base.Key, bool) {
	if s.done {
		return 0, false
	}
	k := s.next
	if k == s.to {
		s.done = true
	} else {
		s.next++
	}
	return k, true
}

// Generator builds records around keys drawn from a KeySource. Non-key
// fields are in [1, 100].
type Generator struct {
	keys KeySource
	rng  *rand.Rand
}

// Records returns a generator over src. rng supplies the non-key fields.
func Records(src KeySource, rng *rand.Rand) *Generator {
	return &Generator{keys: src, rng: rng}
}

// Next returns the next record, or false once the key source is exhausted.
func (g *Generator) Next() (base.Record, bool) {
	k, ok := g.keys.Next()
	if !ok {
		return base.Record{}, false
	}
	return base.Record{
		First:  g.rng.Int32N(100) + 1,
		Second: g.rng.Int32N(100) + 1,
		Third:  g.rng.Int32N(100) + 1,
		Key:    k,
	}, true
}
