package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type countingDecoder struct {
	img      image.Image
	err      error
	releases int
}

type countingHandle struct {
	d   *countingDecoder
	img image.Image
}

func (h *countingHandle) Image() image.Image { return h.img }
func (h *countingHandle) Format() string     { return "fake" }
func (h *countingHandle) Release()           { h.d.releases++ }

func (d *countingDecoder) Decode(ctx context.Context, data []byte) (Handle, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &countingHandle{d: d, img: d.img}, nil
}

func TestLoadScalesToUnitRange(t *testing.T) {
	in := New()
	tensor, err := in.Load(context.Background(), solidPNG(t, 10, 6, color.RGBA{R: 255, G: 51, B: 0, A: 255}))
	require.NoError(t, err)
	defer tensor.Release()

	require.Equal(t, DefaultSize, tensor.Size)
	require.Len(t, tensor.Data, Channels*DefaultSize*DefaultSize)
	assert.InDelta(t, 1.0, tensor.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 0.2, tensor.At(1, 100, 200), 1e-6)
	assert.InDelta(t, 0.0, tensor.At(2, 223, 223), 1e-6)
}

func TestLoadCustomSize(t *testing.T) {
	in := New(WithSize(16))
	tensor, err := in.Load(context.Background(), solidPNG(t, 4, 4, color.White))
	require.NoError(t, err)
	defer tensor.Release()
	assert.Equal(t, 16, tensor.Size)
	assert.Len(t, tensor.Plane(2), 256)
}

func TestLoadRejectsGarbage(t *testing.T) {
	in := New()
	_, err := in.Load(context.Background(), []byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = in.Load(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestLoadReleasesHandleOnEveryPath(t *testing.T) {
	ok := &countingDecoder{img: image.NewRGBA(image.Rect(0, 0, 3, 3))}
	tensor, err := New(WithDecoder(ok)).Load(context.Background(), []byte{1})
	require.NoError(t, err)
	tensor.Release()
	assert.Equal(t, 1, ok.releases)

	empty := &countingDecoder{img: image.NewRGBA(image.Rect(0, 0, 0, 0))}
	_, err = New(WithDecoder(empty)).Load(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 1, empty.releases)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled := &countingDecoder{img: image.NewRGBA(image.Rect(0, 0, 3, 3))}
	_, err = New(WithDecoder(cancelled)).Load(ctx, []byte{1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, cancelled.releases)
}

func TestLoadDecoderErrorIsDecodeError(t *testing.T) {
	d := &countingDecoder{err: errors.New("corrupt header")}
	_, err := New(WithDecoder(d)).Load(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrDecode)
	assert.Zero(t, d.releases)
}

func TestLoadCancelledBeforeDecode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Load(ctx, solidPNG(t, 2, 2, color.Black))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDecode)
}

func TestReleaseIsIdempotent(t *testing.T) {
	in := New(WithSize(8))
	tensor, err := in.Load(context.Background(), solidPNG(t, 2, 2, color.Black))
	require.NoError(t, err)
	tensor.Release()
	tensor.Release()
	assert.True(t, tensor.Released())
	assert.Nil(t, tensor.Data)
}
