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

package gtimage

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/pileupimage/encoding/regionbed"
	"github.com/grailbio/pileupimage/interval"
)

// ReadSource returns the alignments overlapping a region.
// bamprovider.Provider implements it.
type ReadSource interface {
	Reads(chrom string, start, end int) ([]*sam.Record, error)
}

// Sample is one labeled image.
type Sample struct {
	Record regionbed.Record
	Tensor *Tensor
}

// Label is the genotype class of the sample.
func (s Sample) Label() int { return s.Record.Genotype }

// SiteOf returns the image site of a record.
func SiteOf(rec regionbed.Record) Site {
	return Site{
		Chrom:     rec.Chrom,
		Start:     rec.Start,
		End:       rec.End,
		RefAllele: rec.Ref,
		Alts:      rec.Alts,
	}
}

// GenerateOpts configures Generate.
type GenerateOpts struct {
	Image Opts
	// Parallelism is the number of records imaged concurrently.  If <= 0,
	// runtime.NumCPU() is used.
	Parallelism int
	// BatchSize is the number of records imaged between calls to emit.  If
	// <= 0, 64 * Parallelism is used.
	BatchSize int
	// Confident, if non-nil, is used to set InConfident on records that do not
	// carry the flag themselves.  A record is confident if any position of
	// [Start, End) is covered.
	Confident *interval.BEDUnion
	// ConfidentOnly drops records outside confident regions.  Records without
	// their own flag then require Confident.
	ConfidentOnly bool
}

// DefaultGenerateOpts is the default Generate configuration.
var DefaultGenerateOpts = GenerateOpts{Image: DefaultOpts}

// annotate fills in the confident-region flag and returns whether rec should
// be imaged.
func annotate(rec *regionbed.Record, opts *GenerateOpts) (bool, error) {
	if !rec.Extended {
		if opts.Confident == nil {
			if opts.ConfidentOnly {
				return false, errors.E(errors.Invalid, fmt.Sprintf("gtimage: %s:%d has no confident flag and no confident regions were given", rec.Chrom, rec.Start))
			}
			return true, nil
		}
		limit := rec.End
		if limit <= rec.Start {
			limit = rec.Start + 1
		}
		rec.Extended = true
		rec.Qual = math.NaN()
		rec.InConfident = opts.Confident.IntersectsByName(rec.Chrom, interval.PosType(rec.Start), interval.PosType(limit))
	}
	return !opts.ConfidentOnly || rec.InConfident, nil
}

// Generate images every record and calls emit with the samples in input
// order.  Reads for a record are fetched over [Start, End+1).  Records are
// imaged opts.Parallelism at a time; emit is called from the calling
// goroutine only.  The first error stops generation.
func Generate(ctx context.Context, src ReadSource, ref Reference, recs []regionbed.Record, opts GenerateOpts, emit func(Sample) error) error {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 64 * parallelism
	}
	if err := opts.Image.validate(); err != nil {
		return err
	}
	var (
		nDone, nSkipped int
		batch           = make([]regionbed.Record, 0, batchSize)
		out             = make([]Sample, batchSize)
	)
	flush := func() error {
		n := len(batch)
		if n == 0 {
			return nil
		}
		nJob := parallelism
		if nJob > n {
			nJob = n
		}
		err := traverse.Each(nJob, func(jobIdx int) error {
			startIdx := (jobIdx * n) / nJob
			endIdx := ((jobIdx + 1) * n) / nJob
			for i := startIdx; i < endIdx; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				rec := batch[i]
				reads, err := src.Reads(rec.Chrom, rec.Start, rec.End+1)
				if err != nil {
					return errors.E(err, rec.Name())
				}
				t, err := Build(ref, SiteOf(rec), reads, opts.Image)
				if err != nil {
					return errors.E(err, rec.Name())
				}
				out[i] = Sample{Record: rec, Tensor: t}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := emit(out[i]); err != nil {
				return err
			}
			out[i] = Sample{}
		}
		nDone += n
		log.Debug.Printf("gtimage: imaged %d record(s)", nDone)
		batch = batch[:0]
		return nil
	}
	for _, rec := range recs {
		keep, err := annotate(&rec, &opts)
		if err != nil {
			return err
		}
		if !keep {
			nSkipped++
			continue
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	log.Printf("gtimage: imaged %d record(s), skipped %d outside confident regions", nDone, nSkipped)
	return nil
}
