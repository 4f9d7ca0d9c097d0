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

// Package color maps per-read pileup attributes (base, qualities, strand,
// reference match, alt support, CIGAR class) to 8-bit pixel values and back.
//
// Every channel reserves 0 for "no read here"; no attribute value ever
// encodes to 0.  Decoding is exact for every channel except the two quality
// channels, where it returns one of NQualBand bands instead of the original
// score.
package color

import (
	"github.com/grailbio/pileupimage/pileup"
)

// Channel identifies one plane of a pileup image.
type Channel int

const (
	// ChanBase holds the read base.
	ChanBase Channel = iota
	// ChanBaseQual holds the base quality.
	ChanBaseQual
	// ChanMapQual holds the read's mapping quality.
	ChanMapQual
	// ChanStrand holds the read's strand.
	ChanStrand
	// ChanMismatch records whether the base differs from the reference.
	ChanMismatch
	// ChanSupport records whether the read supports one of the alt alleles.
	ChanSupport
	// ChanCigar holds the CIGAR operation class.
	ChanCigar
	// NChannel is the number of channels in a full image.
	NChannel
)

var channelNames = [...]string{"BASE", "BASE QUALITY", "MAP QUALITY", "STRAND", "MISMATCH", "SUPPORT", "CIGAR"}

func (c Channel) String() string {
	if c < 0 || c >= NChannel {
		return "UNKNOWN"
	}
	return channelNames[c]
}

// Empty is the pixel value of a cell no read covers.
const Empty byte = 0

// Base channel.  Each symbol owns a closed band; encoding emits the constant
// below, decoding accepts anything inside the band.
const (
	BaseColorA   byte = 254
	BaseColorG   byte = 180
	BaseColorC   byte = 100
	BaseColorT   byte = 30
	BaseColorDel byte = 5
)

// baseBands lists the lower bound of each base band, highest first.
var baseBands = [...]struct {
	lo     byte
	symbol byte
}{
	{250, 'A'},
	{180, 'G'},
	{100, 'C'},
	{30, 'T'},
	{5, '*'},
}

var baseColorTable [pileup.NBaseEnum]byte

func init() {
	baseColorTable[pileup.BaseA] = BaseColorA
	baseColorTable[pileup.BaseC] = BaseColorC
	baseColorTable[pileup.BaseG] = BaseColorG
	baseColorTable[pileup.BaseT] = BaseColorT
	// N and friends carry no base identity, so they share the deletion band.
	baseColorTable[pileup.BaseX] = BaseColorDel
	baseColorTable[pileup.BaseDel] = BaseColorDel
}

// BaseColor returns the pixel value for an ASCII base.  '*' denotes a
// deletion.
func BaseColor(base byte) byte {
	return baseColorTable[pileup.ASCIIToEnumTable[base]]
}

// DecodeBase returns the base ('A', 'C', 'G', 'T' or '*') whose band contains
// v.  ok is false for 0 and for values below the lowest band.
func DecodeBase(v byte) (base byte, ok bool) {
	for _, b := range baseBands {
		if v >= b.lo {
			return b.symbol, true
		}
	}
	return 0, false
}

// Quality channels use a raw 0..MaxQualColor scale.
const (
	MaxQualColor = 254
	// NQualBand is the number of distinct values DecodeQual returns.
	NQualBand = 10
)

// QualColor returns the pixel value for a quality already on the raw
// 0..MaxQualColor scale.  Values are clamped to [1, MaxQualColor] since 0 is
// reserved for empty cells.
func QualColor(raw int) byte {
	if raw < 1 {
		return 1
	}
	if raw > MaxQualColor {
		return MaxQualColor
	}
	return byte(raw)
}

// ScaleQual linearly maps a phred-like score in [0, cap] onto the raw
// quality scale; scores above cap saturate.
func ScaleQual(q, cap int) int {
	if q > cap {
		q = cap
	}
	if q < 0 {
		q = 0
	}
	return q * MaxQualColor / cap
}

// DecodeQual returns the band floor(v/254*9) of a quality pixel.  This is
// lossy: the original score cannot be recovered.  ok is false for 0.
func DecodeQual(v byte) (band int, ok bool) {
	if v == Empty {
		return 0, false
	}
	band = int(v) * (NQualBand - 1) / MaxQualColor
	if band >= NQualBand {
		band = NQualBand - 1
	}
	return band, true
}

// Strand channel.
const (
	StrandColorRev byte = 240
	StrandColorFwd byte = 70
)

// StrandColor returns the pixel value for a read on the given strand.
func StrandColor(reverse bool) byte {
	if reverse {
		return StrandColorRev
	}
	return StrandColorFwd
}

// DecodeStrand inverts StrandColor.
func DecodeStrand(v byte) (reverse, ok bool) {
	switch v {
	case StrandColorRev:
		return true, true
	case StrandColorFwd:
		return false, true
	}
	return false, false
}

// Mismatch channel.
const (
	MatchColor    byte = 50
	MismatchColor byte = 254
)

// MismatchColorOf returns the pixel value for a base that does (mismatch ==
// true) or does not differ from the reference.
func MismatchColorOf(mismatch bool) byte {
	if mismatch {
		return MismatchColor
	}
	return MatchColor
}

// DecodeMismatch inverts MismatchColorOf.
func DecodeMismatch(v byte) (mismatch, ok bool) {
	switch v {
	case MismatchColor:
		return true, true
	case MatchColor:
		return false, true
	}
	return false, false
}

// Alt-support channel.
const (
	SupportColor   byte = 254
	NoSupportColor byte = 152
)

// SupportColorOf returns the pixel value for a read that does or does not
// carry one of the candidate alt alleles.
func SupportColorOf(supports bool) byte {
	if supports {
		return SupportColor
	}
	return NoSupportColor
}

// DecodeSupport inverts SupportColorOf.
func DecodeSupport(v byte) (supports, ok bool) {
	switch v {
	case SupportColor:
		return true, true
	case NoSupportColor:
		return false, true
	}
	return false, false
}

// CigarClass groups CIGAR operations by their effect on a reference column.
type CigarClass int

const (
	// CigarMatch covers M, = and X.
	CigarMatch CigarClass = iota
	// CigarInsert marks the reference base right before an insertion.
	CigarInsert
	// CigarDelete covers D and N.
	CigarDelete
	nCigarClass
)

var cigarColorTable = [nCigarClass]byte{254, 152, 76}

// CigarColor returns the pixel value for a CIGAR class.
func CigarColor(c CigarClass) byte {
	return cigarColorTable[c]
}

// DecodeCigar inverts CigarColor.
func DecodeCigar(v byte) (c CigarClass, ok bool) {
	for i, cv := range cigarColorTable {
		if v == cv {
			return CigarClass(i), true
		}
	}
	return 0, false
}

// NoMatch is rendered for nonzero values that fall outside every band of the
// channel.
const NoMatch byte = '?'

// Blank is rendered for empty cells.
const Blank byte = ' '

func digit(b bool) byte {
	if b {
		return '1'
	}
	return '0'
}

// Symbol renders a pixel value of the given channel as one printable byte:
// a base letter for ChanBase, a band digit 0-9 for the quality channels, and
// '0'/'1' for the binary channels: 1 = reverse strand or supports alt, and
// on ChanMismatch 1 = matches the reference, 0 = differs.  ChanCigar renders
// 0/1/2 for match/insert/delete.
func Symbol(ch Channel, v byte) byte {
	if v == Empty {
		return Blank
	}
	switch ch {
	case ChanBase:
		if b, ok := DecodeBase(v); ok {
			return b
		}
	case ChanBaseQual, ChanMapQual:
		if band, ok := DecodeQual(v); ok {
			return byte('0' + band)
		}
	case ChanStrand:
		if rev, ok := DecodeStrand(v); ok {
			return digit(rev)
		}
	case ChanMismatch:
		if mm, ok := DecodeMismatch(v); ok {
			return digit(!mm)
		}
	case ChanSupport:
		if s, ok := DecodeSupport(v); ok {
			return digit(s)
		}
	case ChanCigar:
		if c, ok := DecodeCigar(v); ok {
			return byte('0' + int(c))
		}
	}
	return NoMatch
}
