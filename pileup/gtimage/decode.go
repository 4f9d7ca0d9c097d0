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
	"bufio"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/pileupimage/pileup/color"
)

// Decode renders one channel of t as text: one string per column, one symbol
// per row (see color.Symbol).  Empty cells render as ' '.  The result does
// not depend on t's layout.
func Decode(t *Tensor, ch color.Channel) ([]string, error) {
	if ch < 0 || int(ch) >= t.channels {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gtimage: tensor has %d channels, cannot decode %v", t.channels, ch))
	}
	out := make([]string, t.width)
	line := make([]byte, t.depth)
	for col := 0; col < t.width; col++ {
		for row := 0; row < t.depth; row++ {
			line[row] = color.Symbol(ch, t.data[t.index(col, row, int(ch))])
		}
		out[col] = string(line)
	}
	return out, nil
}

// analyzeOrder is the order channels are printed in by Analyze.
var analyzeOrder = []color.Channel{
	color.ChanBase,
	color.ChanCigar,
	color.ChanSupport,
	color.ChanBaseQual,
	color.ChanMapQual,
	color.ChanMismatch,
	color.ChanStrand,
}

// Analyze writes a text rendering of every channel of t to w, each preceded by
// a "<NAME> CHANNEL" heading.
func Analyze(w io.Writer, t *Tensor) error {
	bw := bufio.NewWriter(w)
	for _, ch := range analyzeOrder {
		if int(ch) >= t.channels {
			continue
		}
		lines, err := Decode(t, ch)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "%v CHANNEL\n", ch); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := bw.WriteString(l); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
