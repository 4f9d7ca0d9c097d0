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

	"github.com/grailbio/base/errors"
)

// Layout is the storage order of a Tensor's backing buffer.
type Layout int

const (
	// ChannelLast stores cells as [column][row][channel].  This is the layout
	// Build produces and the one written to disk.
	ChannelLast Layout = iota
	// ChannelFirst stores cells as [channel][column][row].
	ChannelFirst
)

func (l Layout) String() string {
	if l == ChannelFirst {
		return "CHW"
	}
	return "HWC"
}

// Tensor is a fixed-shape pileup image.  Logically it is indexed by
// (column, row, channel) regardless of Layout; a column is one reference
// position and a row is one read.  A Tensor is never modified once Build (or
// one of the conversion functions) has returned it.
type Tensor struct {
	width, depth, channels int
	layout                 Layout
	data                   []byte
}

func newTensor(width, depth, channels int, layout Layout) *Tensor {
	return &Tensor{
		width:    width,
		depth:    depth,
		channels: channels,
		layout:   layout,
		data:     make([]byte, width*depth*channels),
	}
}

// NewTensorFromBytes wraps a copy of data, which must hold
// width*depth*channels values in the given layout.
func NewTensorFromBytes(width, depth, channels int, layout Layout, data []byte) (*Tensor, error) {
	if width <= 0 || depth <= 0 || channels <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gtimage: nonpositive tensor shape %dx%dx%d", width, depth, channels))
	}
	if len(data) != width*depth*channels {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gtimage: tensor data size %d does not match shape %dx%dx%d", len(data), width, depth, channels))
	}
	t := newTensor(width, depth, channels, layout)
	copy(t.data, data)
	return t, nil
}

// Shape returns the logical [width, depth, channels] shape.
func (t *Tensor) Shape() [3]int { return [3]int{t.width, t.depth, t.channels} }

// Width is the number of columns.
func (t *Tensor) Width() int { return t.width }

// Depth is the number of rows.
func (t *Tensor) Depth() int { return t.depth }

// Channels is the number of channels.
func (t *Tensor) Channels() int { return t.channels }

// Layout returns the storage order of Bytes().
func (t *Tensor) Layout() Layout { return t.layout }

// StorageShape returns the shape in storage order: [W, D, C] for
// ChannelLast, [C, W, D] for ChannelFirst.
func (t *Tensor) StorageShape() []int {
	if t.layout == ChannelFirst {
		return []int{t.channels, t.width, t.depth}
	}
	return []int{t.width, t.depth, t.channels}
}

func (t *Tensor) index(col, row, ch int) int {
	if t.layout == ChannelFirst {
		return (ch*t.width+col)*t.depth + row
	}
	return (col*t.depth+row)*t.channels + ch
}

// At returns the value at (col, row, ch).  It panics on out-of-range indexes.
func (t *Tensor) At(col, row, ch int) byte {
	if col < 0 || col >= t.width || row < 0 || row >= t.depth || ch < 0 || ch >= t.channels {
		panic(fmt.Sprintf("gtimage: index (%d, %d, %d) out of range", col, row, ch))
	}
	return t.data[t.index(col, row, ch)]
}

func (t *Tensor) set(col, row, ch int, v byte) {
	t.data[t.index(col, row, ch)] = v
}

// Bytes returns a copy of the backing buffer, in storage order.
func (t *Tensor) Bytes() []byte {
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

// IsZero returns true iff every cell is background.
func (t *Tensor) IsZero() bool {
	for _, v := range t.data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Equal returns true iff t and o have the same shape and the same logical
// content.  Layout is ignored.
func (t *Tensor) Equal(o *Tensor) bool {
	if t.Shape() != o.Shape() {
		return false
	}
	if t.layout == o.layout {
		for i := range t.data {
			if t.data[i] != o.data[i] {
				return false
			}
		}
		return true
	}
	for col := 0; col < t.width; col++ {
		for row := 0; row < t.depth; row++ {
			for ch := 0; ch < t.channels; ch++ {
				if t.data[t.index(col, row, ch)] != o.data[o.index(col, row, ch)] {
					return false
				}
			}
		}
	}
	return true
}

// WithLayout returns a copy of t stored in the given layout.
func (t *Tensor) WithLayout(layout Layout) *Tensor {
	out := newTensor(t.width, t.depth, t.channels, layout)
	if layout == t.layout {
		copy(out.data, t.data)
		return out
	}
	for col := 0; col < t.width; col++ {
		for row := 0; row < t.depth; row++ {
			for ch := 0; ch < t.channels; ch++ {
				out.data[out.index(col, row, ch)] = t.data[t.index(col, row, ch)]
			}
		}
	}
	return out
}

// FromFloat32 rebuilds a tensor from a channel-first float array scaled to
// [0, 1], as produced by image-to-tensor conversions on the training side
// (value/255).  Values are rounded to the nearest byte.
func FromFloat32(width, depth, channels int, data []float32) (*Tensor, error) {
	if len(data) != width*depth*channels {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gtimage: float tensor size %d does not match shape %dx%dx%d", len(data), width, depth, channels))
	}
	t := newTensor(width, depth, channels, ChannelFirst)
	for i, f := range data {
		v := f*255 + 0.5
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		t.data[i] = byte(v)
	}
	return t, nil
}
