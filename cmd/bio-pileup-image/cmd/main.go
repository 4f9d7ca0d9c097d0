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
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/pileupimage/balance"
	"github.com/grailbio/pileupimage/pileup/gtimage"
	"v.io/x/lib/cmdline"
)

func newCmdGenerate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "generate",
		Short: "Write one pileup image per site of a region BED",
		Long: `
generate images the reads around every record of -bed and writes the images,
a summary.csv, and optionally a recordio dataset into a new run_MMDDYYYY_HHMMSS
directory under -out.`,
	}
	img := gtimage.DefaultOpts
	flags := generateFlags{}
	cmd.Flags.StringVar(&flags.bamPath, "bam", "", "Input BAM path (required)")
	cmd.Flags.StringVar(&flags.bamIndex, "index", "", "Input BAM index path. Defaults to bampath + .bai")
	cmd.Flags.StringVar(&flags.refPath, "ref", "", "Reference FASTA path (required)")
	cmd.Flags.StringVar(&flags.faiPath, "fai", "", "Reference FASTA index path.  If set, the reference is read on demand instead of loaded into memory; a missing index is generated")
	cmd.Flags.StringVar(&flags.bedPath, "bed", "", "Region BED path (required); 6 or 9 columns, optionally gzipped")
	cmd.Flags.StringVar(&flags.region, "region", "", "Only image records starting in this region: chr, chr:pos or chr:start-end (1-based, inclusive)")
	cmd.Flags.StringVar(&flags.outDir, "out", ".", "Directory to create the run directory in")
	cmd.Flags.IntVar(&flags.parallelism, "parallelism", 0, "Number of sites imaged concurrently; 0 = runtime.NumCPU()")
	cmd.Flags.IntVar(&flags.image.Width, "width", img.Width, "Image width, in reference positions")
	cmd.Flags.IntVar(&flags.image.Depth, "depth", img.Depth, "Image depth, in reads")
	cmd.Flags.IntVar(&flags.image.Channels, "channels", img.Channels, "Number of channels; 6 drops the CIGAR channel")
	cmd.Flags.BoolVar(&flags.image.Centered, "centered", img.Centered, "Center the site in the image instead of placing it in column 0")
	cmd.Flags.BoolVar(&flags.image.CanonicalOrder, "canonical-order", img.CanonicalOrder, "Sort reads by position and name before assigning rows")
	cmd.Flags.IntVar(&flags.image.FlagExclude, "flag-exclude", img.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	cmd.Flags.IntVar(&flags.image.MinMapQ, "mapq", img.MinMapQ, "Reads with MAPQ below this level are skipped")
	cmd.Flags.IntVar(&flags.image.BaseQualCap, "base-qual-cap", img.BaseQualCap, "Base quality mapped to the top of the base quality channel")
	cmd.Flags.IntVar(&flags.image.MapQualCap, "map-qual-cap", img.MapQualCap, "Mapping quality mapped to the top of the mapping quality channel")
	cmd.Flags.BoolVar(&flags.compress, "compress", false, "Write zstd-compressed .npy.zst images")
	cmd.Flags.BoolVar(&flags.dataset, "dataset", false, "Also write every image and label to "+gtimage.DatasetName)
	cmd.Flags.StringVar(&flags.confidentBED, "confident-bed", "", "BED of confident regions, used to fill in_confident_region for 6-column records")
	cmd.Flags.BoolVar(&flags.confidentOnly, "confident-only", false, "Skip records outside confident regions")
	cmd.Flags.BoolVar(&flags.balance, "balance", false, "Subsample hom-ref records before imaging, as the downsample command does")
	cmd.Flags.Int64Var(&flags.sampler.Seed, "seed", balance.DefaultOpts.Seed, "Random seed for -balance")
	cmd.Flags.BoolVar(&flags.sampler.Keyed, "keyed", false, "Make -balance decisions a function of the record and seed only")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("generate takes no positional arguments, but got %v", argv)
		}
		dir, err := generate(vcontext.Background(), flags)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, dir)
		return nil
	})
	return cmd
}

func newCmdDownsample() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "downsample",
		Short:    "Subsample hom-ref records to balance genotype classes",
		ArgsName: "bedpath",
		Long: `
downsample keeps every het and hom-alt record of bedpath and each hom-ref
record with probability max(het, hom_alt) / hom_ref, and prints the kept
records in input order.`,
	}
	opts := balance.DefaultOpts
	cmd.Flags.Int64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	cmd.Flags.BoolVar(&opts.Keyed, "keyed", opts.Keyed, "Make each decision a function of the record and seed only, independent of record order")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("downsample takes one pathname argument, but got %v", argv)
		}
		return downsample(vcontext.Background(), env.Stdout, argv[0], opts)
	})
	return cmd
}

func newCmdStats() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "stats",
		Short:    "Print genotype class totals of a region BED",
		ArgsName: "bedpath",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("stats takes one pathname argument, but got %v", argv)
		}
		return stats(vcontext.Background(), env.Stdout, argv[0])
	})
	return cmd
}

func newCmdAnalyze() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "analyze",
		Short:    "Print a text rendering of every channel of an image",
		ArgsName: "path",
		Long: `
analyze reads an image written by generate (.npy or .npy.zst) and prints each
channel as one line per reference position, one symbol per read.`,
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("analyze takes one pathname argument, but got %v", argv)
		}
		return analyze(vcontext.Background(), env.Stdout, argv[0])
	})
	return cmd
}

// Run parses os.Args and runs the selected subcommand.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-pileup-image",
			Short:    "Pileup image generation for genotype classifiers",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdGenerate(),
				newCmdDownsample(),
				newCmdStats(),
				newCmdAnalyze(),
			},
		})
}
