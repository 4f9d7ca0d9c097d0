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
package pileup

import (
	"context"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/pileupimage/encoding/fasta"
)

// Common pileup components.

const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
	// BaseDel marks a reference position covered by a deletion (or a skipped
	// region) in the read.  It never occurs in a read's Seq.
	BaseDel
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX and BaseDel as well as the regular base types.
	NBaseEnum = 6
)

// ASCIIToEnumTable is the ASCII -> A/C/G/T/X enum mapping.  Lowercase bases
// are treated like uppercase ones, '*' maps to BaseDel, and everything else
// (N, IUPAC ambiguity codes, '=') maps to BaseX.
var ASCIIToEnumTable [256]byte

func init() {
	for i := range ASCIIToEnumTable {
		ASCIIToEnumTable[i] = BaseX
	}
	for _, c := range []struct {
		ascii byte
		enum  byte
	}{
		{'A', BaseA}, {'a', BaseA},
		{'C', BaseC}, {'c', BaseC},
		{'G', BaseG}, {'g', BaseG},
		{'T', BaseT}, {'t', BaseT},
		{'*', BaseDel},
	} {
		ASCIIToEnumTable[c.ascii] = c.enum
	}
}

// SameBase returns true iff a and b denote the same regular (A/C/G/T) base,
// ignoring case.  N never matches anything, including another N.
func SameBase(a, b byte) bool {
	ea := ASCIIToEnumTable[a]
	return ea < NBase && ea == ASCIIToEnumTable[b]
}

// LoadFa reads the (optionally compressed) FASTA file at fapath into memory.
// When faiPath is nonempty, the FASTA is instead opened for indexed random
// access; compressed input is not supported in that case.  A missing index
// is generated from fapath and written to faiPath first.
func LoadFa(ctx context.Context, fapath, faiPath string) (fa fasta.Fasta, err error) {
	if faiPath != "" {
		if _, err = file.Stat(ctx, faiPath); errors.Is(errors.NotExist, err) {
			err = writeFai(ctx, fapath, faiPath)
		}
		if err != nil {
			return
		}
	}
	var infile file.File
	if infile, err = file.Open(ctx, fapath); err != nil {
		return
	}
	if faiPath != "" {
		var indexIn file.File
		if indexIn, err = file.Open(ctx, faiPath); err != nil {
			_ = infile.Close(ctx)
			return
		}
		defer func() {
			if e := indexIn.Close(ctx); e != nil && err == nil {
				err = e
			}
		}()
		// The indexed reader keeps reading from infile, so it stays open for the
		// lifetime of the process.
		return fasta.NewIndexed(infile.Reader(ctx), indexIn.Reader(ctx), fasta.OptClean)
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return fasta.New(reader, fasta.OptClean)
}

// writeFai generates the .fai index of the uncompressed FASTA at fapath.
func writeFai(ctx context.Context, fapath, faiPath string) (err error) {
	log.Printf("%s: index not found, generating it from %s", faiPath, fapath)
	in, err := file.Open(ctx, fapath)
	if err != nil {
		return err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	out, err := file.Create(ctx, faiPath)
	if err != nil {
		return err
	}
	if err = fasta.GenerateIndex(out.Writer(ctx), in.Reader(ctx)); err != nil {
		out.Discard(ctx)
		return errors.E(err, "generating index", faiPath)
	}
	return out.Close(ctx)
}
