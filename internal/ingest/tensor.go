package ingest

import (
	"sync"
	"sync/atomic"
)

// Channels is the number of colour planes in a Tensor.
const Channels = 3

// Tensor is a square RGB image stored channel-major (CHW) with values in
// [0,1]. Plane c occupies Data[c*Size*Size : (c+1)*Size*Size].
type Tensor struct {
	Size int
	Data []float32

	pool     *sync.Pool
	released atomic.Bool
}

// NewTensor allocates an unpooled zero tensor of size x size pixels.
func NewTensor(size int) *Tensor {
	return &Tensor{Size: size, Data: make([]float32, Channels*size*size)}
}

// Plane returns the values of channel c (0=red, 1=green, 2=blue).
func (t *Tensor) Plane(c int) []float32 {
	n := t.Size * t.Size
	return t.Data[c*n : (c+1)*n]
}

// At returns the value of channel c at (x, y).
func (t *Tensor) At(c, x, y int) float32 {
	return t.Data[c*t.Size*t.Size+y*t.Size+x]
}

// Set stores v in channel c at (x, y).
func (t *Tensor) Set(c, x, y int, v float32) {
	t.Data[c*t.Size*t.Size+y*t.Size+x] = v
}

// Released reports whether Release has been called.
func (t *Tensor) Released() bool {
	return t.released.Load()
}

// Release hands the backing buffer back to the ingestor that produced the
// tensor. The tensor must not be used afterwards. Calling Release more than
// once is a no-op.
func (t *Tensor) Release() {
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	if t.pool != nil {
		buf := t.Data
		t.pool.Put(&buf)
	}
	t.Data = nil
}
