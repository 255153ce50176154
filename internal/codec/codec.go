// Package codec turns clipboard content into compact transport payloads and
// back: normalize → compress on the way out, decompress → decode on the way in.
//
// Text survives the round trip byte-for-byte. Images do not: the encoder
// flattens alpha onto a white background, downscales anything larger than the
// configured bound, and re-encodes as JPEG at a fixed quality before
// compressing. The decoded image is visually equivalent to the source, not
// bit-identical — an intentional bandwidth trade-off.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/klauspost/compress/zstd"
	xdraw "golang.org/x/image/draw"

	"go.klb.dev/copier/internal/content"
)

var (
	// ErrCorruptPayload indicates the compressed bytes could not be decompressed.
	ErrCorruptPayload = errors.New("corrupt payload")

	// ErrInvalidImageData indicates decompressed bytes are not a decodable image.
	ErrInvalidImageData = errors.New("invalid image data")
)

const (
	// DefaultMaxImageDim bounds the longest image edge before transport.
	DefaultMaxImageDim = 1920

	// DefaultJPEGQuality is the fixed lossy re-encode quality.
	DefaultJPEGQuality = 80
)

// Payload is the transport form of one clipboard capture. Data holds
// zstd-compressed bytes: raw UTF-8 for text, JPEG for images.
type Payload struct {
	Kind content.Kind
	Data []byte
}

// Codec encodes and decodes payloads with fixed parameters chosen at
// construction. It is stateless per call and safe for concurrent use.
type Codec struct {
	maxImageDim int
	jpegQuality int
	enc         *zstd.Encoder
	dec         *zstd.Decoder
}

// Option adjusts codec parameters.
type Option func(*Codec)

// WithMaxImageDim overrides the maximum image dimension.
func WithMaxImageDim(px int) Option {
	return func(c *Codec) {
		if px > 0 {
			c.maxImageDim = px
		}
	}
}

// WithJPEGQuality overrides the lossy re-encode quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(c *Codec) {
		if q > 0 && q <= 100 {
			c.jpegQuality = q
		}
	}
}

// New returns a Codec. The compressor runs at zstd's default speed-leaning
// level; clipboard payloads are small and latency-sensitive, so ratio is not
// worth chasing.
func New(opts ...Option) (*Codec, error) {
	c := &Codec{
		maxImageDim: DefaultMaxImageDim,
		jpegQuality: DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(c)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("codec: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd decoder: %w", err)
	}
	c.enc = enc
	c.dec = dec
	return c, nil
}

// Encode converts c into a transport payload.
func (c *Codec) Encode(ct content.Content) (Payload, error) {
	switch ct.Kind {
	case content.KindText:
		return Payload{
			Kind: content.KindText,
			Data: c.enc.EncodeAll([]byte(ct.Text), nil),
		}, nil
	case content.KindImage:
		jpg, err := c.optimizeImage(ct.Image)
		if err != nil {
			return Payload{}, err
		}
		return Payload{
			Kind: content.KindImage,
			Data: c.enc.EncodeAll(jpg, nil),
		}, nil
	default:
		return Payload{}, fmt.Errorf("encode: unknown content kind %q", ct.Kind)
	}
}

// Decode reverses Encode. Text comes back byte-exact; images come back as a
// fresh pixel buffer that is visually equivalent to the original.
func (c *Codec) Decode(p Payload) (content.Content, error) {
	raw, err := c.dec.DecodeAll(p.Data, nil)
	if err != nil {
		return content.Content{}, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}

	switch p.Kind {
	case content.KindText:
		return content.NewText(string(raw)), nil
	case content.KindImage:
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return content.Content{}, fmt.Errorf("%w: %v", ErrInvalidImageData, err)
		}
		return content.NewImage(img), nil
	default:
		return content.Content{}, fmt.Errorf("decode: unknown payload kind %q", p.Kind)
	}
}

// optimizeImage flattens, bounds, and JPEG-encodes an image for transport.
func (c *Codec) optimizeImage(src image.Image) ([]byte, error) {
	flat := flattenOnWhite(src)

	b := flat.Bounds()
	if w, h := b.Dx(), b.Dy(); w > c.maxImageDim || h > c.maxImageDim {
		flat = downscale(flat, c.maxImageDim)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// flattenOnWhite composites src onto an opaque white background, removing any
// alpha channel. Returns an *image.RGBA of the same dimensions.
func flattenOnWhite(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// downscale resizes img so its longest edge equals maxDim, preserving aspect
// ratio with Catmull-Rom resampling.
func downscale(img *image.RGBA, maxDim int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = max(1, h*maxDim/w)
	} else {
		nh = maxDim
		nw = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
