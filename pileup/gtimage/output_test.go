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
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/pileupimage/encoding/regionbed"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func mustParse(t *testing.T, line string) regionbed.Record {
	rec, err := regionbed.Parse(line)
	assert.NoError(t, err)
	return rec
}

func TestNPYRoundTrip(t *testing.T) {
	img := testImage(t)
	for _, src := range []*Tensor{img, img.WithLayout(ChannelFirst)} {
		var buf bytes.Buffer
		assert.NoError(t, WriteNPY(&buf, src))
		got, err := ReadNPY(&buf)
		assert.NoError(t, err)
		expect.EQ(t, got.Layout(), ChannelLast)
		expect.EQ(t, got.Shape(), img.Shape())
		expect.EQ(t, got.Bytes(), img.Bytes())
	}
}

func TestImageFiles(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()
	img := testImage(t)
	for _, ext := range []string{NPYExt, NPYZstdExt} {
		path := filepath.Join(tmpdir, "image"+ext)
		assert.NoError(t, WriteImage(ctx, path, img))
		got, err := ReadImage(ctx, path)
		assert.NoError(t, err)
		expect.True(t, got.Equal(img), ext)
	}
	plain, err := os.Stat(filepath.Join(tmpdir, "image"+NPYExt))
	assert.NoError(t, err)
	compressed, err := os.Stat(filepath.Join(tmpdir, "image"+NPYZstdExt))
	assert.NoError(t, err)
	expect.True(t, compressed.Size() < plain.Size())
}

func TestRunDirName(t *testing.T) {
	now := time.Date(2020, time.March, 7, 14, 5, 9, 0, time.UTC)
	expect.EQ(t, RunDirName(now), "run_03072020_140509")
}

func TestSummaryFields(t *testing.T) {
	img := testImage(t)
	expect.EQ(t,
		SummaryFields("x.npy", mustParse(t, "chr1\t100\t101\tA\tG\t1"), img),
		[]string{"x.npy", "1", "12", "4", "7", "", "", ""})
	expect.EQ(t,
		SummaryFields("y.npy", mustParse(t, "chr1\t100\t101\tA\tG,T\t2\t51.5\tPASS\tTrue"), img),
		[]string{"y.npy", "2", "12", "4", "7", "51.5", "PASS", "True"})
	expect.EQ(t,
		SummaryFields("z.npy", mustParse(t, "chr1\t100\t101\tA\tG\t0\t.\tLowQual\tFalse"), img),
		[]string{"z.npy", "0", "12", "4", "7", ".", "LowQual", "False"})
}

func TestWriter(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()
	img := testImage(t)

	samples := []Sample{
		{Record: mustParse(t, "chr1\t100\t101\tA\tG\t1"), Tensor: img},
		{Record: mustParse(t, "chr1\t200\t201\tC\tT,G\t0\t.\tPASS\tTrue"), Tensor: img.WithLayout(ChannelFirst)},
	}
	dir := filepath.Join(tmpdir, RunDirName(time.Now()))
	w, err := NewWriter(ctx, dir, WriterOpts{Compress: true, Dataset: true})
	assert.NoError(t, err)
	expect.EQ(t, w.Dir(), dir)
	for _, s := range samples {
		assert.NoError(t, w.Write(s))
	}
	assert.NoError(t, w.Close())

	summary, err := ioutil.ReadFile(filepath.Join(dir, SummaryName))
	assert.NoError(t, err)
	path0 := filepath.Join(dir, "chr1_100_G_1"+NPYZstdExt)
	path1 := filepath.Join(dir, "chr1_200_T_G_0"+NPYZstdExt)
	expect.EQ(t, strings.Split(strings.TrimSuffix(string(summary), "\n"), "\n"), []string{
		path0 + ",1,12,4,7,,,",
		path1 + ",0,12,4,7,.,PASS,True",
	})
	for _, path := range []string{path0, path1} {
		got, err := ReadImage(ctx, path)
		assert.NoError(t, err)
		expect.True(t, got.Equal(img), path)
	}

	f, err := os.Open(filepath.Join(dir, DatasetName))
	assert.NoError(t, err)
	defer f.Close()
	var got []Sample
	assert.NoError(t, ScanDataset(f, func(s Sample) error {
		got = append(got, s)
		return nil
	}))
	assert.EQ(t, len(got), 2)
	for i, s := range got {
		expect.EQ(t, s.Record.String(), samples[i].Record.String())
		expect.EQ(t, s.Label(), samples[i].Label())
		expect.EQ(t, s.Tensor.Layout(), ChannelLast)
		expect.True(t, s.Tensor.Equal(img))
	}
}

func TestWriterNoDataset(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()
	w, err := NewWriter(ctx, tmpdir, WriterOpts{})
	assert.NoError(t, err)
	assert.NoError(t, w.Write(Sample{Record: mustParse(t, "chr1\t100\t101\tA\tG\t2"), Tensor: testImage(t)}))
	assert.NoError(t, w.Close())
	_, err = os.Stat(filepath.Join(tmpdir, "chr1_100_G_2"+NPYExt))
	expect.NoError(t, err)
	_, err = os.Stat(filepath.Join(tmpdir, DatasetName))
	expect.True(t, os.IsNotExist(err))
}
