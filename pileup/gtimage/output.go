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
	"context"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/pileupimage/encoding/regionbed"
	"github.com/klauspost/compress/zstd"
	"github.com/kshedden/gonpy"
)

func init() {
	recordiozstd.Init()
}

const (
	// NPYExt is the extension of uncompressed image files.
	NPYExt = ".npy"
	// NPYZstdExt is the extension of zstd-compressed image files.
	NPYZstdExt = ".npy.zst"
	// SummaryName is the name of the per-run summary file.
	SummaryName = "summary.csv"
	// DatasetName is the name of the per-run recordio dataset.
	DatasetName = "dataset.rio"
)

// nopCloser lets gonpy finish a write without closing the file underneath.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// WriteNPY writes t to w as a NumPy uint8 array of shape [W, D, C].
func WriteNPY(w io.Writer, t *Tensor) error {
	if t.layout != ChannelLast {
		t = t.WithLayout(ChannelLast)
	}
	bufw := bufio.NewWriter(w)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = t.StorageShape()
	if err := npw.WriteUint8(t.data); err != nil {
		return err
	}
	return bufw.Flush()
}

// ReadNPY reads a channel-last tensor written by WriteNPY.
func ReadNPY(r io.Reader) (*Tensor, error) {
	npr, err := gonpy.NewReader(r)
	if err != nil {
		return nil, err
	}
	if len(npr.Shape) != 3 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gtimage: expected a 3-dimensional array, got shape %v", npr.Shape))
	}
	data, err := npr.GetUint8()
	if err != nil {
		return nil, err
	}
	return NewTensorFromBytes(npr.Shape[0], npr.Shape[1], npr.Shape[2], ChannelLast, data)
}

// WriteImage writes t to path.  Paths ending in NPYZstdExt are zstd
// compressed.
func WriteImage(ctx context.Context, path string, t *Tensor) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if !strings.HasSuffix(path, NPYZstdExt) {
		return WriteNPY(out.Writer(ctx), t)
	}
	zw, err := zstd.NewWriter(out.Writer(ctx))
	if err != nil {
		return err
	}
	if err = WriteNPY(zw, t); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// ReadImage reads an image written by WriteImage.
func ReadImage(ctx context.Context, path string) (t *Tensor, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if !strings.HasSuffix(path, NPYZstdExt) {
		return ReadNPY(in.Reader(ctx))
	}
	zr, err := zstd.NewReader(in.Reader(ctx))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return ReadNPY(zr)
}

// RunDirName returns the name of the output directory for a run started at
// now: run_MMDDYYYY_HHMMSS.
func RunDirName(now time.Time) string {
	return "run_" + now.Format("01022006_150405")
}

// SummaryFields returns the summary row for one image:
// file_path,genotype,width,depth,channels,quality,filter,in_confident_region.
// The last three are empty for short-form records.
func SummaryFields(path string, rec regionbed.Record, t *Tensor) []string {
	return []string{
		path,
		strconv.Itoa(rec.Genotype),
		strconv.Itoa(t.width),
		strconv.Itoa(t.depth),
		strconv.Itoa(t.channels),
		rec.QualString(),
		rec.Filter,
		rec.InConfidentString(),
	}
}

// WriterOpts configures a Writer.
type WriterOpts struct {
	// Compress writes images as NPYZstdExt instead of NPYExt.
	Compress bool
	// Dataset additionally appends every sample to a recordio dataset.
	Dataset bool
}

// Writer persists samples into a run directory: one image file per sample,
// a summary.csv line per sample, and optionally a recordio dataset.  Not
// thread-safe.
type Writer struct {
	ctx     context.Context
	dir     string
	ext     string
	summary file.File
	csvw    *csv.Writer
	rio     file.File
	rw      recordio.Writer
	n       int
}

// NewWriter creates dir (if local) and opens the summary and dataset files in
// it.
func NewWriter(ctx context.Context, dir string, opts WriterOpts) (w *Writer, err error) {
	if scheme, _, e := file.ParsePath(dir); e == nil && scheme == "" {
		if err = os.MkdirAll(dir, 0777); err != nil {
			return nil, err
		}
	}
	w = &Writer{ctx: ctx, dir: dir, ext: NPYExt}
	if opts.Compress {
		w.ext = NPYZstdExt
	}
	if w.summary, err = file.Create(ctx, file.Join(dir, SummaryName)); err != nil {
		return nil, err
	}
	w.csvw = csv.NewWriter(w.summary.Writer(ctx))
	if opts.Dataset {
		if w.rio, err = file.Create(ctx, file.Join(dir, DatasetName)); err != nil {
			_ = w.summary.Close(ctx)
			return nil, err
		}
		w.rw = recordio.NewWriter(w.rio.Writer(ctx), recordio.WriterOpts{
			Marshal:      marshalSample,
			Transformers: []string{recordiozstd.Name},
		})
	}
	return w, nil
}

// Dir returns the run directory.
func (w *Writer) Dir() string { return w.dir }

// Write persists one sample.
func (w *Writer) Write(s Sample) error {
	path := file.Join(w.dir, s.Record.Name()+w.ext)
	if err := WriteImage(w.ctx, path, s.Tensor); err != nil {
		return err
	}
	if err := w.csvw.Write(SummaryFields(path, s.Record, s.Tensor)); err != nil {
		return err
	}
	if w.rw != nil {
		w.rw.Append(&s)
	}
	w.n++
	return nil
}

// Close flushes and closes the summary and dataset files.
func (w *Writer) Close() (err error) {
	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	w.csvw.Flush()
	setErr(w.csvw.Error())
	setErr(w.summary.Close(w.ctx))
	if w.rw != nil {
		setErr(w.rw.Finish())
		setErr(w.rio.Close(w.ctx))
	}
	log.Printf("gtimage: wrote %d image(s) to %s", w.n, w.dir)
	return
}

// Dataset entries are laid out as
//   uint32 len(line) | line | uint32 width | uint32 depth | uint32 channels | data
// with data in channel-last order.
func marshalSample(scratch []byte, v interface{}) ([]byte, error) {
	s := v.(*Sample)
	line := s.Record.String()
	data := s.Tensor.data
	if s.Tensor.layout != ChannelLast {
		data = s.Tensor.WithLayout(ChannelLast).data
	}
	n := 16 + len(line) + len(data)
	out := scratch
	if cap(out) < n {
		out = make([]byte, n)
	}
	out = out[:n]
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(line)))
	off := 4 + copy(out[4:], line)
	binary.LittleEndian.PutUint32(out[off:off+4], uint32(s.Tensor.width))
	binary.LittleEndian.PutUint32(out[off+4:off+8], uint32(s.Tensor.depth))
	binary.LittleEndian.PutUint32(out[off+8:off+12], uint32(s.Tensor.channels))
	copy(out[off+12:], data)
	return out, nil
}

func unmarshalSample(in []byte) (interface{}, error) {
	if len(in) < 4 {
		return nil, errors.E(errors.Invalid, "gtimage: truncated dataset entry")
	}
	lineLen := int(binary.LittleEndian.Uint32(in[0:4]))
	off := 4 + lineLen
	if len(in) < off+12 {
		return nil, errors.E(errors.Invalid, "gtimage: truncated dataset entry")
	}
	rec, err := regionbed.Parse(string(in[4:off]))
	if err != nil {
		return nil, err
	}
	width := int(binary.LittleEndian.Uint32(in[off : off+4]))
	depth := int(binary.LittleEndian.Uint32(in[off+4 : off+8]))
	channels := int(binary.LittleEndian.Uint32(in[off+8 : off+12]))
	t, err := NewTensorFromBytes(width, depth, channels, ChannelLast, in[off+12:])
	if err != nil {
		return nil, err
	}
	return &Sample{Record: rec, Tensor: t}, nil
}

// ScanDataset calls fn on every sample of a dataset written by Writer, in
// write order.
func ScanDataset(rs io.ReadSeeker, fn func(Sample) error) error {
	scanner := recordio.NewScanner(rs, recordio.ScannerOpts{
		Unmarshal: unmarshalSample,
	})
	for scanner.Scan() {
		if err := fn(*scanner.Get().(*Sample)); err != nil {
			_ = scanner.Finish()
			return err
		}
	}
	return scanner.Finish()
}
