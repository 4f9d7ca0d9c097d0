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

package color_test

import (
	"testing"

	"github.com/grailbio/pileupimage/pileup/color"
	"github.com/grailbio/testutil/expect"
)

func TestBase(t *testing.T) {
	tests := []struct {
		base byte
		want byte
	}{
		{'A', 'A'},
		{'c', 'C'},
		{'G', 'G'},
		{'T', 'T'},
		{'*', '*'},
		{'N', '*'},
		{'R', '*'},
	}
	for _, tt := range tests {
		v := color.BaseColor(tt.base)
		expect.True(t, v != color.Empty, "base %c", tt.base)
		got, ok := color.DecodeBase(v)
		expect.True(t, ok)
		expect.EQ(t, got, tt.want, "base %c", tt.base)
	}
}

func TestBaseBands(t *testing.T) {
	tests := []struct {
		v    byte
		want byte
		ok   bool
	}{
		{255, 'A', true},
		{250, 'A', true},
		{249, 'G', true},
		{180, 'G', true},
		{179, 'C', true},
		{100, 'C', true},
		{99, 'T', true},
		{30, 'T', true},
		{29, '*', true},
		{5, '*', true},
		{4, 0, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		got, ok := color.DecodeBase(tt.v)
		expect.EQ(t, ok, tt.ok, "v=%d", tt.v)
		expect.EQ(t, got, tt.want, "v=%d", tt.v)
	}
}

func TestQual(t *testing.T) {
	expect.EQ(t, color.QualColor(0), byte(1))
	expect.EQ(t, color.QualColor(-3), byte(1))
	expect.EQ(t, color.QualColor(100), byte(100))
	expect.EQ(t, color.QualColor(1000), byte(254))

	expect.EQ(t, color.ScaleQual(60, 60), 254)
	expect.EQ(t, color.ScaleQual(99, 60), 254)
	expect.EQ(t, color.ScaleQual(30, 60), 127)
	expect.EQ(t, color.ScaleQual(0, 60), 0)

	tests := []struct {
		v    byte
		band int
	}{
		{1, 0},
		{28, 0},
		{29, 1},
		{127, 4},
		{254, 9},
		{255, 9},
	}
	for _, tt := range tests {
		band, ok := color.DecodeQual(tt.v)
		expect.True(t, ok)
		expect.EQ(t, band, tt.band, "v=%d", tt.v)
	}
	_, ok := color.DecodeQual(0)
	expect.False(t, ok)
}

func TestQualRawScale(t *testing.T) {
	// Values already on the raw scale pass through QualColor unchanged.
	for _, tt := range []struct {
		raw  int
		band int
	}{
		{200, 7},
		{180, 6},
	} {
		v := color.QualColor(tt.raw)
		expect.EQ(t, v, byte(tt.raw))
		band, ok := color.DecodeQual(v)
		expect.True(t, ok)
		expect.EQ(t, band, tt.band, "raw=%d", tt.raw)
		expect.EQ(t, color.Symbol(color.ChanBaseQual, v), byte('0'+tt.band))
		expect.EQ(t, color.Symbol(color.ChanMapQual, v), byte('0'+tt.band))
	}
}

func TestBinaryChannels(t *testing.T) {
	for _, b := range []bool{false, true} {
		rev, ok := color.DecodeStrand(color.StrandColor(b))
		expect.True(t, ok)
		expect.EQ(t, rev, b)

		mm, ok := color.DecodeMismatch(color.MismatchColorOf(b))
		expect.True(t, ok)
		expect.EQ(t, mm, b)

		s, ok := color.DecodeSupport(color.SupportColorOf(b))
		expect.True(t, ok)
		expect.EQ(t, s, b)
	}
	for _, v := range []byte{0, 1, 71, 200} {
		_, ok := color.DecodeStrand(v)
		expect.False(t, ok, "v=%d", v)
		_, ok = color.DecodeMismatch(v)
		expect.False(t, ok, "v=%d", v)
		_, ok = color.DecodeSupport(v)
		expect.False(t, ok, "v=%d", v)
	}
}

func TestCigar(t *testing.T) {
	for _, c := range []color.CigarClass{color.CigarMatch, color.CigarInsert, color.CigarDelete} {
		got, ok := color.DecodeCigar(color.CigarColor(c))
		expect.True(t, ok)
		expect.EQ(t, got, c)
	}
	_, ok := color.DecodeCigar(100)
	expect.False(t, ok)
}

func TestSymbol(t *testing.T) {
	tests := []struct {
		ch   color.Channel
		v    byte
		want byte
	}{
		{color.ChanBase, 0, ' '},
		{color.ChanBase, color.BaseColorG, 'G'},
		{color.ChanBase, 3, '?'},
		{color.ChanBaseQual, 254, '9'},
		{color.ChanMapQual, 1, '0'},
		{color.ChanStrand, color.StrandColorRev, '1'},
		{color.ChanStrand, color.StrandColorFwd, '0'},
		{color.ChanStrand, 7, '?'},
		{color.ChanMismatch, color.MismatchColor, '0'},
		{color.ChanMismatch, color.MatchColor, '1'},
		{color.ChanMismatch, 3, '?'},
		{color.ChanSupport, color.SupportColor, '1'},
		{color.ChanSupport, color.NoSupportColor, '0'},
		{color.ChanCigar, color.CigarColor(color.CigarDelete), '2'},
		{color.ChanCigar, 9, '?'},
	}
	for _, tt := range tests {
		expect.EQ(t, color.Symbol(tt.ch, tt.v), tt.want, "%v v=%d", tt.ch, tt.v)
	}
}

func TestChannelString(t *testing.T) {
	expect.EQ(t, color.ChanBase.String(), "BASE")
	expect.EQ(t, color.ChanCigar.String(), "CIGAR")
	expect.EQ(t, color.NChannel.String(), "UNKNOWN")
}
