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
	"bufio"
	"context"
	"io"

	"github.com/grailbio/base/log"
	"github.com/grailbio/pileupimage/balance"
	"github.com/grailbio/pileupimage/encoding/regionbed"
)

// downsample prints the records of bedPath that a Sampler keeps.  The file is
// read twice: once to count classes and once to filter, so the counts are
// complete before the first decision.
func downsample(ctx context.Context, out io.Writer, bedPath string, opts balance.Opts) error {
	var counts balance.Counts
	if err := regionbed.ForEachInFile(ctx, bedPath, func(r regionbed.Record) error {
		counts.Add(r.Genotype)
		return nil
	}); err != nil {
		return err
	}
	sampler, err := balance.NewSampler(counts, opts)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	var nKept balance.Counts
	if err := regionbed.ForEachInFile(ctx, bedPath, func(r regionbed.Record) error {
		if !sampler.Keep(r) {
			return nil
		}
		nKept.Add(r.Genotype)
		if _, err := w.WriteString(r.String()); err != nil {
			return err
		}
		return w.WriteByte('\n')
	}); err != nil {
		return err
	}
	log.Printf("downsample: kept %d of %d hom-ref record(s), rate %.4f", nKept.HomRef, counts.HomRef, sampler.Rate())
	return w.Flush()
}

func stats(ctx context.Context, out io.Writer, bedPath string) error {
	var counts balance.Counts
	if err := regionbed.ForEachInFile(ctx, bedPath, func(r regionbed.Record) error {
		counts.Add(r.Genotype)
		return nil
	}); err != nil {
		return err
	}
	return balance.WriteStats(out, counts)
}
