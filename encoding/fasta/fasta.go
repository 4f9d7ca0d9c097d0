// Package fasta reads reference sequences out of FASTA files, either fully
// into memory or through a samtools-style .fai index.  A FASTA file is a
// series of named sequences, each of which may be broken across lines:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// The sequence name is everything after '>' up to the first space, so
// '>chr1 A viral sequence' names sequence 'chr1'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Longest single FASTA line we are willing to buffer.
const maxLineLen = 1024 * 1024 * 300

// Fasta is a set of named sequences.
type Fasta interface {
	// Get returns bases [start, end) of the named sequence.  It is safe to
	// call from multiple goroutines.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the named sequence.
	Len(seqName string) (uint64, error)

	// SeqNames lists the sequence names in file order.
	SeqNames() []string
}

// Opt configures New and NewIndexed.
type Opt func(*opts)

type opts struct {
	clean bool
}

// OptClean uppercases every base and replaces anything outside ACGT with
// 'N', so that callers can compare bases bytewise.
func OptClean(o *opts) { o.clean = true }

func parseOpts(optList []Opt) opts {
	var o opts
	for _, fn := range optList {
		fn(&o)
	}
	return o
}

var cleanTable [256]byte

func init() {
	for i := range cleanTable {
		cleanTable[i] = 'N'
	}
	for _, c := range "ACGT" {
		cleanTable[c] = byte(c)
		cleanTable[c+'a'-'A'] = byte(c)
	}
}

func cleanInplace(seq []byte) {
	for i, c := range seq {
		seq[i] = cleanTable[c]
	}
}

type memFasta struct {
	seqs     map[string]string
	seqNames []string
}

// New reads all of r into memory.
func New(r io.Reader, optList ...Opt) (Fasta, error) {
	o := parseOpts(optList)
	f := &memFasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineLen)
	var (
		seqName string
		seq     []byte
		started bool
	)
	flush := func() {
		if o.clean {
			cleanInplace(seq)
		}
		f.seqs[seqName] = string(seq)
		f.seqNames = append(f.seqNames, seqName)
		seq = seq[:0]
	}
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			if !started {
				return nil, errors.Errorf("malformed FASTA file: sequence data before first header")
			}
			seq = append(seq, line...)
			continue
		}
		if started {
			flush()
		}
		seqName = strings.Split(string(line[1:]), " ")[0]
		started = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	if started {
		flush()
	}
	return f, nil
}

// Get implements Fasta.Get().
func (f *memFasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, len(s))
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *memFasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *memFasta) SeqNames() []string {
	return f.seqNames
}
