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

package cmd

import (
	"context"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/pileupimage/balance"
	"github.com/grailbio/pileupimage/encoding/bamprovider"
	"github.com/grailbio/pileupimage/encoding/regionbed"
	"github.com/grailbio/pileupimage/interval"
	"github.com/grailbio/pileupimage/pileup"
	"github.com/grailbio/pileupimage/pileup/gtimage"
)

type generateFlags struct {
	bamPath, bamIndex string
	refPath, faiPath  string
	bedPath           string
	region            string
	outDir            string
	parallelism       int
	image             gtimage.Opts
	compress, dataset bool
	confidentBED      string
	confidentOnly     bool
	balance           bool
	sampler           balance.Opts
}

// generate writes the images for f.bedPath into a new run directory and
// returns the directory's path.
func generate(ctx context.Context, f generateFlags) (dir string, err error) {
	if f.bamPath == "" || f.refPath == "" || f.bedPath == "" {
		return "", errors.E(errors.Invalid, "generate: -bam, -ref and -bed are required")
	}
	recs, err := regionbed.ReadFile(ctx, f.bedPath)
	if err != nil {
		return "", err
	}
	if f.region != "" {
		if recs, err = inRegion(recs, f.region); err != nil {
			return "", err
		}
	}
	if f.balance {
		counts := balance.CountAll(recs)
		sampler, err := balance.NewSampler(counts, f.sampler)
		if err != nil {
			return "", err
		}
		recs = balance.Downsample(recs, sampler)
		log.Printf("generate: balanced %d record(s) down to %d (hom-ref rate %.4f)", counts.Total(), len(recs), sampler.Rate())
	}
	ref, err := pileup.LoadFa(ctx, f.refPath, f.faiPath)
	if err != nil {
		return "", err
	}
	opts := gtimage.DefaultGenerateOpts
	opts.Image = f.image
	opts.Parallelism = f.parallelism
	opts.ConfidentOnly = f.confidentOnly
	if f.confidentBED != "" {
		confident, err := interval.NewBEDUnionFromPath(f.confidentBED, interval.NewBEDOpts{})
		if err != nil {
			return "", err
		}
		opts.Confident = &confident
	}

	provider := bamprovider.NewProvider(f.bamPath, bamprovider.ProviderOpts{Index: f.bamIndex})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	dir = file.Join(f.outDir, gtimage.RunDirName(time.Now()))
	w, err := gtimage.NewWriter(ctx, dir, gtimage.WriterOpts{Compress: f.compress, Dataset: f.dataset})
	if err != nil {
		return "", err
	}
	err = gtimage.Generate(ctx, provider, ref, recs, opts, w.Write)
	if e := w.Close(); e != nil && err == nil {
		err = e
	}
	return dir, err
}

// inRegion returns the records whose start lies in region.
func inRegion(recs []regionbed.Record, region string) ([]regionbed.Record, error) {
	entry, err := interval.ParseRegionString(region)
	if err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	var kept []regionbed.Record
	for _, rec := range recs {
		if rec.Chrom == entry.ChrName && rec.Start >= int(entry.Start0) && rec.Start < int(entry.End) {
			kept = append(kept, rec)
		}
	}
	log.Printf("generate: %d of %d record(s) in %s", len(kept), len(recs), region)
	return kept, nil
}
