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
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/pileupimage/balance"
	"github.com/grailbio/pileupimage/encoding/bamprovider"
	"github.com/grailbio/pileupimage/pileup/color"
	"github.com/grailbio/pileupimage/pileup/gtimage"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refSeq = strings.Repeat("ACGT", 125)

const testBED = `#chrom	start	end	ref	alt	genotype
chr1	100	101	A	G	1
chr1	200	201	A	T	0
chr1	300	301	A	C	0
`

func writeFile(t *testing.T, path, data string) string {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
	return path
}

// writeInputs writes a reference, an indexed BAM and a region BED into dir.
// Reads r0 and r1 carry G at position 100, r2 matches the reference.
func writeInputs(t *testing.T, dir string) (refPath, bamPath, bedPath string) {
	refPath = writeFile(t, filepath.Join(dir, "ref.fa"), ">chr1\n"+refSeq+"\n")
	bedPath = writeFile(t, filepath.Join(dir, "sites.bed"), testBED)

	chr1, err := sam.NewReference("chr1", "", "", len(refSeq), nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	require.NoError(t, err)
	bamPath = filepath.Join(dir, "reads.bam")
	f, err := os.Create(bamPath)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, header, 1)
	require.NoError(t, err)
	for i, name := range []string{"r0", "r1", "r2"} {
		seq := []byte(refSeq[98:105])
		if i < 2 {
			seq[2] = 'G'
		}
		qual := bytes.Repeat([]byte{30}, len(seq))
		flags := sam.Flags(0)
		if i == 1 {
			flags = sam.Reverse
		}
		rec, err := sam.NewRecord(name, chr1, nil, 98, -1, 0, 60, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, len(seq))}, seq, qual, nil)
		require.NoError(t, err)
		rec.Flags = flags
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	require.NoError(t, bamprovider.WriteIndex(context.Background(), bamPath, bamPath+".bai"))
	return
}

func TestGenerate(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := context.Background()
	refPath, bamPath, bedPath := writeInputs(t, tmpDir)

	f := generateFlags{
		bamPath: bamPath,
		refPath: refPath,
		bedPath: bedPath,
		outDir:  filepath.Join(tmpDir, "out"),
		image:   gtimage.DefaultOpts,
		dataset: true,
	}
	f.image.Width = 10
	f.image.Depth = 5
	dir, err := generate(ctx, f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "run_"))

	summary, err := ioutil.ReadFile(filepath.Join(dir, gtimage.SummaryName))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "chr1_100_G_1.npy") + ",1,10,5,7,,,",
		filepath.Join(dir, "chr1_200_T_0.npy") + ",0,10,5,7,,,",
		filepath.Join(dir, "chr1_300_C_0.npy") + ",0,10,5,7,,,",
	}, strings.Split(strings.TrimSuffix(string(summary), "\n"), "\n"))

	img, err := gtimage.ReadImage(ctx, filepath.Join(dir, "chr1_100_G_1.npy"))
	require.NoError(t, err)
	bases, err := gtimage.Decode(img, color.ChanBase)
	require.NoError(t, err)
	assert.Equal(t, "GGA  ", bases[0])
	assert.Equal(t, "GGG  ", bases[2])
	assert.Equal(t, "     ", bases[5])
	support, err := gtimage.Decode(img, color.ChanSupport)
	require.NoError(t, err)
	assert.Equal(t, "110  ", support[0])
	strand, err := gtimage.Decode(img, color.ChanStrand)
	require.NoError(t, err)
	assert.Equal(t, "010  ", strand[0])

	empty, err := gtimage.ReadImage(ctx, filepath.Join(dir, "chr1_200_T_0.npy"))
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	var out bytes.Buffer
	require.NoError(t, analyze(ctx, &out, filepath.Join(dir, "chr1_100_G_1.npy")))
	assert.True(t, strings.HasPrefix(out.String(), "BASE CHANNEL\nGGA  \n"))

	rio, err := os.Open(filepath.Join(dir, gtimage.DatasetName))
	require.NoError(t, err)
	defer rio.Close()
	var labels []int
	require.NoError(t, gtimage.ScanDataset(rio, func(s gtimage.Sample) error {
		labels = append(labels, s.Label())
		return nil
	}))
	assert.Equal(t, []int{1, 0, 0}, labels)
}

func TestGenerateRegionWithIndexedRef(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := context.Background()
	refPath, bamPath, bedPath := writeInputs(t, tmpDir)

	f := generateFlags{
		bamPath: bamPath,
		refPath: refPath,
		faiPath: refPath + ".fai",
		bedPath: bedPath,
		region:  "chr1:50-300",
		outDir:  filepath.Join(tmpDir, "out"),
		image:   gtimage.DefaultOpts,
	}
	f.image.Width = 10
	f.image.Depth = 5
	dir, err := generate(ctx, f)
	require.NoError(t, err)
	summary, err := ioutil.ReadFile(filepath.Join(dir, gtimage.SummaryName))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "chr1_100_G_1.npy") + ",1,10,5,7,,,",
		filepath.Join(dir, "chr1_200_T_0.npy") + ",0,10,5,7,,,",
	}, strings.Split(strings.TrimSuffix(string(summary), "\n"), "\n"))

	fai, err := ioutil.ReadFile(refPath + ".fai")
	require.NoError(t, err)
	assert.Equal(t, "chr1\t500\t6\t500\t501\n", string(fai))

	img, err := gtimage.ReadImage(ctx, filepath.Join(dir, "chr1_100_G_1.npy"))
	require.NoError(t, err)
	mismatch, err := gtimage.Decode(img, color.ChanMismatch)
	require.NoError(t, err)
	assert.Equal(t, "001  ", mismatch[0])

	f.region = "chr2"
	f.outDir = filepath.Join(tmpDir, "out2")
	dir, err = generate(ctx, f)
	require.NoError(t, err)
	summary, err = ioutil.ReadFile(filepath.Join(dir, gtimage.SummaryName))
	require.NoError(t, err)
	assert.Equal(t, "", string(summary))

	f.region = "chr1:0-10"
	_, err = generate(ctx, f)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestGenerateMissingFlags(t *testing.T) {
	_, err := generate(context.Background(), generateFlags{bedPath: "x.bed"})
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestDownsampleAndStats(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := context.Background()
	bedPath := writeFile(t, filepath.Join(tmpDir, "sites.bed"), testBED)

	var out bytes.Buffer
	require.NoError(t, stats(ctx, &out, bedPath))
	assert.Equal(t, "hom_ref\thet\thom_alt\ttotal\n"+
		"2\t1\t0\t3\n"+
		"Percent homozygous records:\t66\n"+
		"Percent heterozygous records:\t33\n"+
		"Percent hom-alt records:\t0\n", out.String())

	run := func(opts balance.Opts) string {
		var buf bytes.Buffer
		require.NoError(t, downsample(ctx, &buf, bedPath, opts))
		return buf.String()
	}
	kept := run(balance.Opts{Seed: 3, Keyed: true})
	assert.Contains(t, kept, "chr1\t100\t101\tA\tG\t1\n")
	n := strings.Count(kept, "\n")
	assert.True(t, n >= 1 && n <= 3, "kept %q", kept)
	assert.Equal(t, kept, run(balance.Opts{Seed: 3, Keyed: true}))
	assert.Equal(t, run(balance.DefaultOpts), run(balance.DefaultOpts))

	noHomRef := writeFile(t, filepath.Join(tmpDir, "het.bed"), "chr1\t100\t101\tA\tG\t1\n")
	err := downsample(ctx, &out, noHomRef, balance.DefaultOpts)
	assert.True(t, errors.Is(errors.Precondition, err))
}
