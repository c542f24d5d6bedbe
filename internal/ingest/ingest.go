// Package ingest decodes uploaded image bytes into fixed-size RGB tensors.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultSize is the width and height images are resized to.
const DefaultSize = 224

// ErrDecode is returned when the input bytes are not a decodable image.
var ErrDecode = errors.New("image decode failed")

// Handle is a decoded image that holds resources until Release is called.
type Handle interface {
	Image() image.Image
	Format() string
	Release()
}

// Decoder turns raw file bytes into a Handle.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (Handle, error)
}

// StdDecoder decodes with the image package registry (JPEG, PNG, GIF, BMP,
// TIFF and WebP).
type StdDecoder struct{}

type decoded struct {
	img    image.Image
	format string
}

func (d *decoded) Image() image.Image { return d.img }
func (d *decoded) Format() string     { return d.format }
func (d *decoded) Release()           { d.img = nil }

// Decode implements Decoder.
func (StdDecoder) Decode(ctx context.Context, data []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &decoded{img: img, format: format}, nil
}

// Ingestor converts image bytes into pooled tensors.
type Ingestor struct {
	decoder Decoder
	size    int
	logger  *zap.Logger
	pool    sync.Pool
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithDecoder replaces the default StdDecoder.
func WithDecoder(d Decoder) Option {
	return func(in *Ingestor) { in.decoder = d }
}

// WithSize sets the output tensor edge length.
func WithSize(size int) Option {
	return func(in *Ingestor) {
		if size > 0 {
			in.size = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// New returns an Ingestor producing DefaultSize tensors unless configured
// otherwise.
func New(opts ...Option) *Ingestor {
	in := &Ingestor{
		decoder: StdDecoder{},
		size:    DefaultSize,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	n := Channels * in.size * in.size
	in.pool.New = func() any {
		buf := make([]float32, n)
		return &buf
	}
	return in
}

// Size returns the tensor edge length produced by Load.
func (in *Ingestor) Size() int {
	return in.size
}

// Load decodes data and returns a size x size tensor scaled to [0,1]. The
// decode handle is released before Load returns, on every path. The caller
// owns the tensor and must Release it.
func (in *Ingestor) Load(ctx context.Context, data []byte) (*Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	h, err := in.decoder.Decode(ctx, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer h.Release()

	img := h.Image()
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	in.logger.Debug("decoded image",
		zap.String("format", h.Format()),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := resize.Resize(uint(in.size), uint(in.size), img, resize.NearestNeighbor)
	return in.fill(resized), nil
}

func (in *Ingestor) fill(img image.Image) *Tensor {
	buf := in.pool.Get().(*[]float32)
	t := &Tensor{Size: in.size, Data: *buf, pool: &in.pool}

	bounds := img.Bounds()
	plane := in.size * in.size
	for y := 0; y < in.size; y++ {
		for x := 0; x < in.size; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			idx := y*in.size + x
			t.Data[idx] = float32(r) / 65535.0
			t.Data[plane+idx] = float32(g) / 65535.0
			t.Data[2*plane+idx] = float32(b) / 65535.0
		}
	}
	return t
}
