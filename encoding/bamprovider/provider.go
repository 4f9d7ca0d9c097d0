package bamprovider

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the index file. If empty, defaults to
	// path + ".bai".
	Index string
}

// Provider allows reading the alignments overlapping a region.  Reads and
// NewIterator may be called concurrently.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over the records on ref whose alignment
	// overlaps the half-open range [start, end), in file order.  The caller
	// must Close the iterator.
	//
	// REQUIRES: Close has not been called.
	NewIterator(ref *sam.Reference, start, end int) Iterator

	// Reads returns the records on the named reference whose alignment
	// overlaps [start, end), in file order.  An unknown reference name is an
	// error.
	Reads(chrom string, start, end int) ([]*sam.Record, error)

	// Close must be called exactly once. It returns any error encountered by
	// the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in a particular genomic range, in
// coordinate order.  Thread compatible.
type Iterator interface {
	// Scan returns whether there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record.  Calling Scan with
	// a non-nil Err() returns false.
	Scan() bool

	// Record returns the current record.
	//
	// REQUIRES: Scan() returned true.
	Record() *sam.Record

	// Err returns any error encountered by the iterator.
	Err() error

	// Close must be called exactly once.  It returns the value of Err().
	Close() error
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
	}
	return opts
}

// NewProvider creates a Provider for the BAM file at path.  path may be local
// or an S3 URL.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	return &BAMProvider{Path: path, Index: opts.Index}
}

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// overlaps returns true iff rec is aligned to ref and its alignment overlaps
// [start, end).  Records with no CIGAR cover a single base.
func overlaps(rec *sam.Record, ref *sam.Reference, start, end int) bool {
	if rec.Ref == nil || rec.Ref.ID() != ref.ID() || rec.Pos >= end {
		return false
	}
	recEnd := rec.End()
	if recEnd <= rec.Pos {
		recEnd = rec.Pos + 1
	}
	return recEnd > start
}

// readRegion collects the records of the given region from p.
func readRegion(p Provider, chrom string, start, end int) ([]*sam.Record, error) {
	h, err := p.GetHeader()
	if err != nil {
		return nil, err
	}
	ref := RefByName(h, chrom)
	if ref == nil {
		return nil, fmt.Errorf("bamprovider: reference '%s' not found", chrom)
	}
	iter := p.NewIterator(ref, start, end)
	var recs []*sam.Record
	for iter.Scan() {
		recs = append(recs, iter.Record())
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return recs, nil
}

type errorIterator struct {
	err error
}

func (i *errorIterator) Scan() bool          { return false }
func (i *errorIterator) Record() *sam.Record { panic("shall not be called") }
func (i *errorIterator) Err() error          { return i.err }
func (i *errorIterator) Close() error        { return i.err }

// NewErrorIterator creates an Iterator that yields no record and returns "err"
// in Err and Close.
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}
