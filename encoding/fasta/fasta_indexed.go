package fasta

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/grailbio/base/unsafe"
)

// One .fai line: "<name>\t<length>\t<byte offset>\t<bases per line>\t<bytes
// per line>", e.g. "chr3\t12345\t9000\t80\t81".
var indexLineRE = regexp.MustCompile(`^(\S+)\t(\d+)\t(\d+)\t(\d+)\t(\d+)`)

type indexEntry struct {
	length    uint64
	offset    uint64
	lineBase  uint64
	lineWidth uint64
}

type indexedFasta struct {
	clean    bool
	seqs     map[string]indexEntry
	seqNames []string

	mu     sync.Mutex
	reader io.ReadSeeker
	bufOff int64
	buf    []byte // file contents starting at bufOff
}

func parseIndex(index io.Reader) (map[string]indexEntry, []string, error) {
	seqs := make(map[string]indexEntry)
	var names []string
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		m := indexLineRE.FindStringSubmatch(scanner.Text())
		if len(m) != 6 {
			return nil, nil, fmt.Errorf("invalid index line: %s", scanner.Text())
		}
		var ent indexEntry
		for i, dst := range []*uint64{&ent.length, &ent.offset, &ent.lineBase, &ent.lineWidth} {
			v, err := strconv.ParseUint(m[i+2], 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid index line: %s: %v", scanner.Text(), err)
			}
			*dst = v
		}
		if ent.lineBase == 0 || ent.lineWidth < ent.lineBase {
			return nil, nil, fmt.Errorf("invalid line geometry in index line: %s", scanner.Text())
		}
		seqs[m[1]] = ent
		names = append(names, m[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	sort.SliceStable(names, func(i, j int) bool {
		return seqs[names[i]].offset < seqs[names[j]].offset
	})
	return seqs, names, nil
}

// NewIndexed returns a Fasta which serves random lookups from fasta through
// the given .fai index, without loading the sequences into memory.
func NewIndexed(fasta io.ReadSeeker, index io.Reader, optList ...Opt) (Fasta, error) {
	seqs, names, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	return &indexedFasta{
		clean:    parseOpts(optList).clean,
		seqs:     seqs,
		seqNames: names,
		reader:   fasta,
	}, nil
}

// FaiToReferenceLengths maps each sequence named in a .fai index to its
// length, without touching the FASTA itself.
func FaiToReferenceLengths(index io.Reader) (map[string]uint64, error) {
	seqs, _, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	lengths := make(map[string]uint64, len(seqs))
	for name, ent := range seqs {
		lengths[name] = ent.length
	}
	return lengths, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return 0, fmt.Errorf("sequence not found in index: %s", seqName)
	}
	return ent.length, nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}

// readAt returns file bytes [off, off+n), refilling the cache if needed.
// REQUIRES: f.mu is held.
func (f *indexedFasta) readAt(off int64, n int) ([]byte, error) {
	if off >= f.bufOff && off+int64(n) <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : off-f.bufOff+int64(n)], nil
	}
	if got, err := f.reader.Seek(off, io.SeekStart); err != nil || got != off {
		return nil, fmt.Errorf("failed to seek to offset %d: %d, %v", off, got, err)
	}
	size := 8192
	if size < n {
		size = n
	}
	if cap(f.buf) < size {
		f.buf = make([]byte, size)
	}
	f.buf = f.buf[:size]
	nRead, err := io.ReadAtLeast(f.reader, f.buf, n)
	if nRead < n {
		f.buf = f.buf[:0]
		return nil, fmt.Errorf("encountered unexpected end of file (bad index? file doesn't end in newline?): %v", err)
	}
	f.bufOff = off
	f.buf = f.buf[:nRead]
	return f.buf[:n], nil
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	if end <= start {
		return "", fmt.Errorf("start must be less than end")
	}
	ent, ok := f.seqs[seqName]
	if !ok {
		return "", fmt.Errorf("sequence not found in index: %s", seqName)
	}
	if end > ent.length {
		return "", fmt.Errorf("end is past end of sequence %s: %d", seqName, ent.length)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Byte range covering [start, end), including the line terminators in
	// between.
	eolLen := ent.lineWidth - ent.lineBase
	firstByte := ent.offset + start + eolLen*(start/ent.lineBase)
	lastByte := ent.offset + (end - 1) + eolLen*((end-1)/ent.lineBase)
	raw, err := f.readAt(int64(firstByte), int(lastByte-firstByte+1))
	if err != nil {
		return "", err
	}
	result := make([]byte, 0, end-start)
	col := start % ent.lineBase
	for i := 0; i < len(raw); {
		take := ent.lineBase - col
		if rem := uint64(len(raw) - i); take > rem {
			take = rem
		}
		result = append(result, raw[i:i+int(take)]...)
		i += int(take + eolLen)
		col = 0
	}
	if f.clean {
		cleanInplace(result)
	}
	return unsafe.BytesToString(result), nil
}
