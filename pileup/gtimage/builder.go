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
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/pileupimage/pileup"
	"github.com/grailbio/pileupimage/pileup/color"
)

const (
	// DefaultWidth is the number of reference positions in an image.
	DefaultWidth = 300
	// DefaultDepth is the maximum number of reads in an image.
	DefaultDepth = 300
	// NChannelNoCigar is the channel count of images without the CIGAR
	// channel.
	NChannelNoCigar = int(color.ChanCigar)
)

// Opts controls image layout and read filtering.
type Opts struct {
	// Width is the number of columns (reference positions).
	Width int
	// Depth is the maximum number of rows (reads).  Reads past this are
	// dropped.
	Depth int
	// Channels is 6 (no CIGAR channel) or 7.
	Channels int
	// Centered places the site in the middle column instead of column 0.
	Centered bool
	// CanonicalOrder sorts reads by (position, name, flags) before assigning
	// rows, so the image does not depend on the order the alignment reader
	// returns overlapping reads in.
	CanonicalOrder bool
	// FlagExclude is a bitmask; reads with any of these flags set are skipped.
	FlagExclude int
	// MinMapQ is the minimum mapping quality of an imaged read.
	MinMapQ int
	// BaseQualCap and MapQualCap are the phred scores mapped to the top of the
	// quality channels' scale; higher scores saturate.
	BaseQualCap int
	MapQualCap  int
}

// DefaultOpts is the default image configuration.
var DefaultOpts = Opts{
	Width:       DefaultWidth,
	Depth:       DefaultDepth,
	Channels:    int(color.NChannel),
	FlagExclude: int(sam.Secondary | sam.QCFail | sam.Duplicate | sam.Supplementary),
	BaseQualCap: 60,
	MapQualCap:  60,
}

func (o Opts) validate() error {
	if o.Width <= 0 || o.Depth <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("gtimage: invalid image size %dx%d", o.Width, o.Depth))
	}
	if o.Channels != NChannelNoCigar && o.Channels != int(color.NChannel) {
		return errors.E(errors.Invalid, fmt.Sprintf("gtimage: channel count must be %d or %d, got %d", NChannelNoCigar, color.NChannel, o.Channels))
	}
	if o.BaseQualCap <= 0 || o.MapQualCap <= 0 {
		return errors.E(errors.Invalid, "gtimage: quality caps must be positive")
	}
	return nil
}

// Reference provides reference bases.  encoding/fasta.Fasta implements it.
type Reference interface {
	// Get returns the bases in [start, end) of the named sequence.
	Get(seqName string, start, end uint64) (string, error)
	// Len returns the length of the named sequence.
	Len(seqName string) (uint64, error)
}

// Site is the variant site an image is centered on.  Start and End are
// 0-based reference coordinates.
type Site struct {
	Chrom     string
	Start     int
	End       int
	RefAllele string
	Alts      []string
}

// Origin returns the reference position of column 0.
func (s Site) Origin(opts Opts) int {
	if opts.Centered {
		return s.Start - opts.Width/2
	}
	return s.Start
}

// Build renders the reads overlapping site into a new tensor.  Each kept read
// takes one row, in the order given (or canonical order when
// opts.CanonicalOrder is set); each column is one reference position starting
// at site.Origin(opts).  Cells no read covers are 0 in every channel.
//
// ref may be nil, in which case the mismatch channel is left empty.  Build
// does not modify reads.
func Build(ref Reference, site Site, reads []*sam.Record, opts Opts) (*Tensor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	b := builder{
		opts:   opts,
		site:   site,
		origin: site.Origin(opts),
		t:      newTensor(opts.Width, opts.Depth, opts.Channels, ChannelLast),
	}
	if ref != nil {
		if err := b.loadRef(ref); err != nil {
			return nil, err
		}
	}
	if opts.CanonicalOrder {
		sorted := make([]*sam.Record, len(reads))
		copy(sorted, reads)
		sort.SliceStable(sorted, func(i, j int) bool {
			ri, rj := sorted[i], sorted[j]
			if ri.Pos != rj.Pos {
				return ri.Pos < rj.Pos
			}
			if ri.Name != rj.Name {
				return ri.Name < rj.Name
			}
			return ri.Flags < rj.Flags
		})
		reads = sorted
	}
	row := 0
	for _, r := range reads {
		if row >= opts.Depth {
			break
		}
		if !b.keep(r) {
			continue
		}
		if err := b.addRead(r, row); err != nil {
			return nil, err
		}
		row++
	}
	return b.t, nil
}

type builder struct {
	opts   Opts
	site   Site
	origin int
	t      *Tensor
	// refBases covers reference positions [refStart, refStart+len(refBases)).
	refStart int
	refBases string
}

func (b *builder) loadRef(ref Reference) error {
	n, err := ref.Len(b.site.Chrom)
	if err != nil {
		return err
	}
	lo, hi := b.origin, b.origin+b.opts.Width
	if lo < 0 {
		lo = 0
	}
	if hi > int(n) {
		hi = int(n)
	}
	if lo >= hi {
		return nil
	}
	if b.refBases, err = ref.Get(b.site.Chrom, uint64(lo), uint64(hi)); err != nil {
		return err
	}
	b.refStart = lo
	return nil
}

// keep returns true iff r should take a row: it must be mapped, pass the flag
// and mapq filters, and overlap the window.
func (b *builder) keep(r *sam.Record) bool {
	if r.Flags&sam.Unmapped != 0 || len(r.Cigar) == 0 || r.Ref == nil {
		return false
	}
	if int(r.Flags)&b.opts.FlagExclude != 0 || int(r.MapQ) < b.opts.MinMapQ {
		return false
	}
	if r.Ref.Name() != b.site.Chrom {
		return false
	}
	return r.Pos < b.origin+b.opts.Width && r.End() > b.origin
}

func (b *builder) col(pos int) (int, bool) {
	c := pos - b.origin
	return c, c >= 0 && c < b.opts.Width
}

func (b *builder) mismatch(pos int, base byte) (byte, bool) {
	i := pos - b.refStart
	if i < 0 || i >= len(b.refBases) {
		return 0, false
	}
	return color.MismatchColorOf(!pileup.SameBase(base, b.refBases[i])), true
}

// readCell holds the per-read channel values.
type readCell struct {
	mapQ    byte
	strand  byte
	support byte
}

func (b *builder) setCell(col, row int, rc readCell, pos int, base, qual byte, cigar color.CigarClass) {
	t := b.t
	t.set(col, row, int(color.ChanBase), color.BaseColor(base))
	t.set(col, row, int(color.ChanBaseQual), color.QualColor(color.ScaleQual(int(qual), b.opts.BaseQualCap)))
	t.set(col, row, int(color.ChanMapQual), rc.mapQ)
	t.set(col, row, int(color.ChanStrand), rc.strand)
	if v, ok := b.mismatch(pos, base); ok {
		t.set(col, row, int(color.ChanMismatch), v)
	}
	t.set(col, row, int(color.ChanSupport), rc.support)
	if t.channels > int(color.ChanCigar) {
		t.set(col, row, int(color.ChanCigar), color.CigarColor(cigar))
	}
}

func baseQual(r *sam.Record, i int) byte {
	if i >= len(r.Qual) || r.Qual[i] == 0xff {
		return 0
	}
	return r.Qual[i]
}

func (b *builder) addRead(r *sam.Record, row int) error {
	seq := r.Seq.Expand()
	rc := readCell{
		mapQ:    color.QualColor(color.ScaleQual(int(r.MapQ), b.opts.MapQualCap)),
		strand:  color.StrandColor(r.Flags&sam.Reverse != 0),
		support: color.SupportColorOf(supportsAlt(r, seq, b.site)),
	}
	refPos := r.Pos
	readPos := 0
	// Quality of the last aligned base, used for deletion cells.
	var lastQual byte
	for _, co := range r.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if readPos+n > len(seq) {
				return errors.E(errors.Invalid, fmt.Sprintf("gtimage: read %s: CIGAR %v is longer than its sequence (%d)", r.Name, r.Cigar, len(seq)))
			}
			for i := 0; i < n; i++ {
				lastQual = baseQual(r, readPos+i)
				if c, ok := b.col(refPos + i); ok {
					b.setCell(c, row, rc, refPos+i, seq[readPos+i], lastQual, color.CigarMatch)
				}
			}
			refPos += n
			readPos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			for i := 0; i < n; i++ {
				if c, ok := b.col(refPos + i); ok {
					b.setCell(c, row, rc, refPos+i, '*', lastQual, color.CigarDelete)
				}
			}
			refPos += n
		case sam.CigarInsertion:
			// The insertion sits between refPos-1 and refPos; it is shown on the
			// anchor base.  A deleted anchor keeps CigarDelete.
			if c, ok := b.col(refPos - 1); ok && b.t.channels > int(color.ChanCigar) &&
				b.t.At(c, row, int(color.ChanCigar)) == color.CigarColor(color.CigarMatch) {
				b.t.set(c, row, int(color.ChanCigar), color.CigarColor(color.CigarInsert))
			}
			readPos += n
		case sam.CigarSoftClipped:
			readPos += n
		case sam.CigarHardClipped, sam.CigarPadded:
		default:
			return errors.E(errors.Invalid, fmt.Sprintf("gtimage: read %s: unexpected CIGAR code %v", r.Name, co))
		}
	}
	return nil
}

// supportsAlt returns true iff the read carries any of site's alt alleles.
// Alleles are interpreted VCF-style against site.RefAllele: an alt of the same
// length is a substitution at site.Start, a longer alt an insertion after the
// shared prefix, a shorter alt a deletion after the shared prefix.
func supportsAlt(r *sam.Record, seq []byte, site Site) bool {
	for _, alt := range site.Alts {
		if alt == "" || alt == "*" || alt[0] == '<' {
			continue
		}
		var ok bool
		switch {
		case len(alt) == len(site.RefAllele):
			ok = hasBases(r, seq, site.Start, alt)
		case len(alt) > len(site.RefAllele):
			ok = hasInsertion(r, seq, site.Start+len(site.RefAllele), alt[len(site.RefAllele):])
		default:
			ok = hasDeletion(r, site.Start+len(alt), len(site.RefAllele)-len(alt))
		}
		if ok {
			return true
		}
	}
	return false
}

// hasBases returns true iff the read is aligned to every position of
// [pos, pos+len(bases)) with a base matching bases.
func hasBases(r *sam.Record, seq []byte, pos int, bases string) bool {
	matched := 0
	refPos, readPos := r.Pos, 0
	for _, co := range r.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < n; i++ {
				j := refPos + i - pos
				if j < 0 || j >= len(bases) {
					continue
				}
				if readPos+i >= len(seq) || !pileup.SameBase(seq[readPos+i], bases[j]) {
					return false
				}
				matched++
			}
			refPos += n
			readPos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			if refPos+n > pos && refPos < pos+len(bases) {
				return false
			}
			refPos += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			readPos += n
		}
	}
	return matched == len(bases)
}

// hasInsertion returns true iff the read has an insertion of exactly ins
// immediately before reference position pos.
func hasInsertion(r *sam.Record, seq []byte, pos int, ins string) bool {
	refPos, readPos := r.Pos, 0
	for _, co := range r.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			refPos += n
			readPos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			refPos += n
		case sam.CigarInsertion:
			if refPos == pos && n == len(ins) && readPos+n <= len(seq) &&
				strings.EqualFold(string(seq[readPos:readPos+n]), ins) {
				return true
			}
			readPos += n
		case sam.CigarSoftClipped:
			readPos += n
		}
		if refPos > pos {
			return false
		}
	}
	return false
}

// hasDeletion returns true iff the read deletes exactly n bases starting at
// reference position pos.
func hasDeletion(r *sam.Record, pos, n int) bool {
	refPos := r.Pos
	for _, co := range r.Cigar {
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch, sam.CigarSkipped:
			refPos += co.Len()
		case sam.CigarDeletion:
			if refPos == pos && co.Len() == n {
				return true
			}
			refPos += co.Len()
		}
		if refPos > pos {
			return false
		}
	}
	return false
}
