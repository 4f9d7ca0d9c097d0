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

package regionbed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// Scanner reads records one line at a time.  Blank lines, '#' comments and
// "track"/"browser" header lines are skipped.
//
//   sc := regionbed.NewScanner(r)
//   for sc.Scan() {
//     rec := sc.Record()
//     ...
//   }
//   if err := sc.Err(); err != nil { ... }
type Scanner struct {
	sc     *bufio.Scanner
	lineNo int
	line   string
	rec    Record
	err    error
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Scanner{sc: sc}
}

func skipLine(line string) bool {
	return line == "" || line[0] == '#' ||
		strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser")
}

// Scan advances to the next record.  It returns false at EOF or on the first
// error; a malformed record stops the scan.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.sc.Scan() {
		s.lineNo++
		line := strings.TrimRight(s.sc.Text(), "\r")
		if skipLine(line) {
			continue
		}
		rec, err := Parse(line)
		if err != nil {
			s.err = errors.E(errors.Invalid, err, fmt.Sprintf("line %d", s.lineNo))
			return false
		}
		s.line, s.rec = line, rec
		return true
	}
	s.err = s.sc.Err()
	return false
}

// Record returns the record read by the last successful Scan.
func (s *Scanner) Record() Record { return s.rec }

// Line returns the source text of the record read by the last successful
// Scan.
func (s *Scanner) Line() string { return s.line }

// LineNo returns the 1-based line number of the last line read.
func (s *Scanner) LineNo() int { return s.lineNo }

// Err returns the error, if any, that stopped the scan.
func (s *Scanner) Err() error { return s.err }

// ReadAll parses every record in r.
func ReadAll(r io.Reader) ([]Record, error) {
	var recs []Record
	sc := NewScanner(r)
	for sc.Scan() {
		recs = append(recs, sc.Record())
	}
	return recs, sc.Err()
}

// ReadFile parses every record in the file at path.  path may be local or
// remote (anything grailbio/base/file supports); files with a .gz suffix
// are decompressed.
func ReadFile(ctx context.Context, path string) (recs []Record, err error) {
	err = ForEachInFile(ctx, path, func(rec Record) error {
		recs = append(recs, rec)
		return nil
	})
	return
}

// ForEachInFile calls fn for every record in the file at path, in order.
// It stops at the first error returned by fn.
func ForEachInFile(ctx context.Context, path string, fn func(Record) error) (err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer func() {
			if cerr := gz.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		reader = gz
	}
	sc := NewScanner(reader)
	for sc.Scan() {
		if err = fn(sc.Record()); err != nil {
			return
		}
	}
	if err = sc.Err(); err != nil {
		err = errors.E(err, path)
	}
	return
}
