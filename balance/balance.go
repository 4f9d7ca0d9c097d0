// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package balance downsamples hom-ref sites so that they are about as common
// as the larger of the het and hom-alt classes.
//
// Balancing takes two passes over the records: CountAll tallies the classes,
// then a Sampler built from the finished tally decides per record.  Het and
// hom-alt records are always kept; a hom-ref record is kept with probability
// max(het, hom-alt)/hom-ref.
package balance

import (
	"io"
	"math/rand"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/pileupimage/encoding/regionbed"
)

// Counts is the number of records in each genotype class.
type Counts struct {
	HomRef int
	Het    int
	HomAlt int
}

// Add tallies one record of the given genotype.
func (c *Counts) Add(genotype int) {
	switch genotype {
	case regionbed.HomRef:
		c.HomRef++
	case regionbed.Het:
		c.Het++
	case regionbed.HomAlt:
		c.HomAlt++
	}
}

// CountAll tallies every record.
func CountAll(recs []regionbed.Record) Counts {
	var c Counts
	for _, r := range recs {
		c.Add(r.Genotype)
	}
	return c
}

// Total is the number of records counted.
func (c Counts) Total() int { return c.HomRef + c.Het + c.HomAlt }

// Percent returns the integer percentage (rounded down) of each class.  All
// are 0 when nothing was counted.
func (c Counts) Percent() (homRef, het, homAlt int) {
	total := c.Total()
	if total == 0 {
		return 0, 0, 0
	}
	return c.HomRef * 100 / total, c.Het * 100 / total, c.HomAlt * 100 / total
}

// Rate returns the probability with which a hom-ref record is kept.  It may
// exceed 1, in which case every record is kept.  It fails when there are no
// hom-ref records.
func (c Counts) Rate() (float64, error) {
	if c.HomRef == 0 {
		return 0, errors.E(errors.Precondition, "balance: no hom-ref records, downsampling rate is undefined")
	}
	larger := c.Het
	if c.HomAlt > larger {
		larger = c.HomAlt
	}
	return float64(larger) / float64(c.HomRef), nil
}

// Opts configures a Sampler.
type Opts struct {
	// Seed seeds the random draws.
	Seed int64
	// Keyed derives each hom-ref draw from a hash of the record and Seed, so
	// that a record's fate does not depend on its position in the stream.
	Keyed bool
}

// DefaultOpts is the default Sampler configuration.
var DefaultOpts = Opts{Seed: 1}

// Sampler decides which records to keep.  It is not thread-safe unless
// Opts.Keyed is set.
type Sampler struct {
	counts Counts
	rate   float64
	opts   Opts
	rng    *rand.Rand
}

// NewSampler creates a Sampler from the class counts of the complete record
// set.
func NewSampler(counts Counts, opts Opts) (*Sampler, error) {
	rate, err := counts.Rate()
	if err != nil {
		return nil, err
	}
	return &Sampler{
		counts: counts,
		rate:   rate,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Rate is the hom-ref keep probability.
func (s *Sampler) Rate() float64 { return s.rate }

// Counts returns the class counts s was built from.
func (s *Sampler) Counts() Counts { return s.counts }

// draw returns a uniform value in [0, 1).
func (s *Sampler) draw(r regionbed.Record) float64 {
	if !s.opts.Keyed {
		return s.rng.Float64()
	}
	h := farm.Hash64WithSeed([]byte(r.String()), uint64(s.opts.Seed))
	return float64(h>>11) / (1 << 53)
}

// Keep returns true iff r should be kept.  Non-hom-ref records are always
// kept.
func (s *Sampler) Keep(r regionbed.Record) bool {
	if r.Genotype != regionbed.HomRef {
		return true
	}
	return s.draw(r) <= s.rate
}

// Downsample returns the records s keeps, in order.
func Downsample(recs []regionbed.Record, s *Sampler) []regionbed.Record {
	var kept []regionbed.Record
	for _, r := range recs {
		if s.Keep(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// WriteStats writes a class report: the per-class counts, then one line per
// class with its integer percentage.
func WriteStats(w io.Writer, c Counts) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("hom_ref")
	tw.WriteString("het")
	tw.WriteString("hom_alt")
	tw.WriteString("total")
	if err := tw.EndLine(); err != nil {
		return err
	}
	tw.WriteUint32(uint32(c.HomRef))
	tw.WriteUint32(uint32(c.Het))
	tw.WriteUint32(uint32(c.HomAlt))
	tw.WriteUint32(uint32(c.Total()))
	if err := tw.EndLine(); err != nil {
		return err
	}
	homRef, het, homAlt := c.Percent()
	for _, p := range []struct {
		label string
		pct   int
	}{
		{"Percent homozygous records:", homRef},
		{"Percent heterozygous records:", het},
		{"Percent hom-alt records:", homAlt},
	} {
		tw.WriteString(p.label)
		tw.WriteUint32(uint32(p.pct))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
