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

// Package regionbed parses labeled candidate-site records.  Each record is a
// tab-separated line in one of two forms:
//
//   chrom  start  end  ref  alts  genotype
//   chrom  start  end  ref  alts  genotype  qual  filter  in_confident_region
//
// alts is a comma-separated list.  genotype is 0 (hom-ref), 1 (het) or 2
// (hom-alt).
package regionbed

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

const (
	// NFieldBasic is the field count of the short record form.
	NFieldBasic = 6
	// NFieldExtended is the field count of the form carrying quality, filter
	// and confident-region columns.
	NFieldExtended = 9
)

// Genotype classes.
const (
	HomRef = 0
	Het    = 1
	HomAlt = 2
	// NGenotype is the number of genotype classes.
	NGenotype = 3
)

// Record is one parsed candidate site.  Start and End are 0-based.
type Record struct {
	Chrom    string
	Start    int
	End      int
	Ref      string
	Alts     []string
	Genotype int

	// The remaining fields are only set when Extended is true.
	Extended bool
	// Qual is NaN when the source field was ".".
	Qual        float64
	Filter      string
	InConfident bool
}

func invalidf(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, fmt.Sprintf(format, args...))
}

// Parse parses a single record line.  Trailing newline characters are
// ignored.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) != NFieldBasic && len(fields) != NFieldExtended {
		return Record{}, invalidf("regionbed: expected %d or %d tab-separated fields, got %d: %q", NFieldBasic, NFieldExtended, len(fields), line)
	}
	var (
		r   Record
		err error
	)
	if r.Chrom = fields[0]; r.Chrom == "" {
		return Record{}, invalidf("regionbed: empty chromosome: %q", line)
	}
	if r.Start, err = strconv.Atoi(fields[1]); err != nil {
		return Record{}, invalidf("regionbed: bad start %q", fields[1])
	}
	if r.End, err = strconv.Atoi(fields[2]); err != nil {
		return Record{}, invalidf("regionbed: bad end %q", fields[2])
	}
	if r.Start < 0 || r.Start > r.End {
		return Record{}, invalidf("regionbed: bad interval [%d, %d)", r.Start, r.End)
	}
	r.Ref = fields[3]
	if fields[4] == "" {
		return Record{}, invalidf("regionbed: empty alt list: %q", line)
	}
	r.Alts = strings.Split(fields[4], ",")
	if r.Genotype, err = strconv.Atoi(fields[5]); err != nil {
		return Record{}, invalidf("regionbed: bad genotype %q", fields[5])
	}
	if r.Genotype < HomRef || r.Genotype > HomAlt {
		return Record{}, invalidf("regionbed: genotype %d out of range", r.Genotype)
	}
	if len(fields) == NFieldBasic {
		return r, nil
	}
	r.Extended = true
	if fields[6] == "." {
		r.Qual = math.NaN()
	} else if r.Qual, err = strconv.ParseFloat(fields[6], 64); err != nil {
		return Record{}, invalidf("regionbed: bad quality %q", fields[6])
	}
	r.Filter = fields[7]
	if r.InConfident, err = strconv.ParseBool(fields[8]); err != nil {
		return Record{}, invalidf("regionbed: bad confident-region flag %q", fields[8])
	}
	return r, nil
}

// Label is the training label of the record.
func (r Record) Label() int { return r.Genotype }

// Name identifies the record in output file names:
// chrom_start_alt1_alt2..._genotype.
func (r Record) Name() string {
	var sb strings.Builder
	sb.WriteString(r.Chrom)
	sb.WriteByte('_')
	sb.WriteString(strconv.Itoa(r.Start))
	for _, a := range r.Alts {
		sb.WriteByte('_')
		sb.WriteString(a)
	}
	sb.WriteByte('_')
	sb.WriteString(strconv.Itoa(r.Genotype))
	return sb.String()
}

// QualString renders Qual the way it appears in a record line.  It is empty
// for short-form records.
func (r Record) QualString() string {
	if !r.Extended {
		return ""
	}
	if math.IsNaN(r.Qual) {
		return "."
	}
	return strconv.FormatFloat(r.Qual, 'g', -1, 64)
}

// InConfidentString renders InConfident the way it appears in a record line.
// It is empty for short-form records.
func (r Record) InConfidentString() string {
	if !r.Extended {
		return ""
	}
	if r.InConfident {
		return "True"
	}
	return "False"
}

// String renders r as a record line, without the newline.
func (r Record) String() string {
	fields := []string{
		r.Chrom,
		strconv.Itoa(r.Start),
		strconv.Itoa(r.End),
		r.Ref,
		strings.Join(r.Alts, ","),
		strconv.Itoa(r.Genotype),
	}
	if r.Extended {
		fields = append(fields, r.QualString(), r.Filter, r.InConfidentString())
	}
	return strings.Join(fields, "\t")
}
