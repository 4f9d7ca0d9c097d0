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
	"strings"
	"testing"

	"github.com/grailbio/pileupimage/pileup/color"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestDecode(t *testing.T) {
	img := testImage(t)
	bases, err := Decode(img, color.ChanBase)
	assert.NoError(t, err)
	expect.EQ(t, len(bases), 12)
	// Column 0 is position 100: read a has A, read b has A, read c has not
	// started.
	expect.EQ(t, bases[0], "AA  ")
	expect.EQ(t, bases[1], "C*  ")
	expect.EQ(t, bases[4], " CC ")
	// An N decodes into the deletion band.
	expect.EQ(t, bases[10], "  * ")

	strand, err := Decode(img, color.ChanStrand)
	assert.NoError(t, err)
	expect.EQ(t, strand[0], "01  ")

	// 1 = matches the reference.  The N at column 10 differs.
	mismatch, err := Decode(img, color.ChanMismatch)
	assert.NoError(t, err)
	expect.EQ(t, mismatch[0], "11  ")
	expect.EQ(t, mismatch[10], "  0 ")

	cigar, err := Decode(img, color.ChanCigar)
	assert.NoError(t, err)
	expect.EQ(t, cigar[5], " 01 ")

	// Unknown values render as '?'.
	raw := img.Bytes()
	raw[img.index(11, 3, int(color.ChanStrand))] = 1
	odd, err := NewTensorFromBytes(12, 4, 7, ChannelLast, raw)
	assert.NoError(t, err)
	strand, err = Decode(odd, color.ChanStrand)
	assert.NoError(t, err)
	expect.EQ(t, strand[11], "  0?")
}

func TestDecodeLayoutIndependent(t *testing.T) {
	img := testImage(t)
	cf := img.WithLayout(ChannelFirst)
	for ch := color.Channel(0); ch < color.NChannel; ch++ {
		want, err := Decode(img, ch)
		assert.NoError(t, err)
		got, err := Decode(cf, ch)
		assert.NoError(t, err)
		expect.EQ(t, got, want, "channel %v", ch)
	}
}

func TestAnalyze(t *testing.T) {
	img := testImage(t)
	var buf bytes.Buffer
	assert.NoError(t, Analyze(&buf, img))
	var headings []string
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for _, l := range lines {
		if strings.HasSuffix(l, " CHANNEL") {
			headings = append(headings, l)
		}
	}
	expect.EQ(t, headings, []string{
		"BASE CHANNEL",
		"CIGAR CHANNEL",
		"SUPPORT CHANNEL",
		"BASE QUALITY CHANNEL",
		"MAP QUALITY CHANNEL",
		"MISMATCH CHANNEL",
		"STRAND CHANNEL",
	})
	expect.EQ(t, len(lines), 7*(1+img.Width()))
	expect.EQ(t, lines[1], "AA  ")

	opts := DefaultOpts
	opts.Width = 3
	opts.Depth = 2
	opts.Channels = NChannelNoCigar
	six, err := Build(nil, snpSite(), nil, opts)
	assert.NoError(t, err)
	buf.Reset()
	assert.NoError(t, Analyze(&buf, six))
	expect.False(t, strings.Contains(buf.String(), "CIGAR"))
	expect.EQ(t, strings.Count(buf.String(), "CHANNEL"), 6)
}
